package feed

import (
	"context"

	"locallens/application/ports"
	"locallens/domain/core/entities"
	"locallens/domain/core/valueobjects"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// voteEnricher fills Post.UserVote with one store lookup per post.
type voteEnricher struct {
	votes    ports.VoteReader
	parallel int
	logger   *zap.Logger
}

func newVoteEnricher(votes ports.VoteReader, parallel int, logger *zap.Logger) *voteEnricher {
	if parallel <= 0 {
		parallel = 1
	}
	return &voteEnricher{votes: votes, parallel: parallel, logger: logger}
}

// enrich returns copies of posts with UserVote set. A failed lookup keeps
// whatever fallback knows about the post.
func (e *voteEnricher) enrich(
	ctx context.Context,
	userID string,
	posts []entities.Post,
	fallback func(postID string) (valueobjects.VoteDirection, bool),
) []entities.Post {
	out := make([]entities.Post, len(posts))
	for i, p := range posts {
		out[i] = p.Clone()
		out[i].UserVote = valueobjects.VoteNone
	}
	if userID == "" || len(out) == 0 {
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallel)
	for i := range out {
		i := i
		g.Go(func() error {
			vote, err := e.votes.GetUserVote(gctx, userID, out[i].ID)
			if err != nil {
				e.logger.Warn("Vote lookup failed",
					zap.String("post_id", out[i].ID),
					zap.Error(err),
				)
				if fallback != nil {
					if v, ok := fallback(out[i].ID); ok {
						out[i].UserVote = v
					}
				}
				return nil
			}
			if vote != nil {
				out[i].UserVote = vote.Direction
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
