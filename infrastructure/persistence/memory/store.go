// Package memory is an in-process implementation of the remote store ports.
// It backs the "memory" store mode for local runs and the application tests.
package memory

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"locallens/application/ports"
	"locallens/domain/core/entities"
	pkgerrors "locallens/pkg/errors"
)

// Operation names used for failure injection and call counting.
const (
	OpQueryActivePosts   = "QueryActivePosts"
	OpGetPost            = "GetPost"
	OpQueryPostsByAuthor = "QueryPostsByAuthor"
	OpWatchActivePosts   = "WatchActivePosts"
	OpCreatePost         = "CreatePost"
	OpDeactivatePost     = "DeactivatePost"
	OpGetUserVote        = "GetUserVote"
	OpCommitVote         = "CommitVote"
	OpQueryComments      = "QueryComments"
	OpGetComment         = "GetComment"
	OpCreateComment      = "CreateComment"
	OpDeleteComment      = "DeleteComment"
	OpGetUser            = "GetUser"
	OpSaveUser           = "SaveUser"
)

type voteKey struct {
	voterID string
	postID  string
}

type watcher struct {
	query ports.WatchQuery
	fn    func([]entities.Post)
}

// Store keeps every collection in maps guarded by one mutex. Watchers are
// notified synchronously after each write, outside the lock.
type Store struct {
	mu        sync.Mutex
	posts     map[string]entities.Post
	votes     map[voteKey]entities.Vote
	comments  map[string]entities.Comment
	users     map[string]entities.User
	failures  map[string]error
	calls     map[string]int
	watchers  map[int]watcher
	nextWatch int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		posts:    make(map[string]entities.Post),
		votes:    make(map[voteKey]entities.Vote),
		comments: make(map[string]entities.Comment),
		users:    make(map[string]entities.User),
		failures: make(map[string]error),
		calls:    make(map[string]int),
		watchers: make(map[int]watcher),
	}
}

var _ ports.RemoteStore = (*Store)(nil)

// FailOn makes every call of op return err until FailOn(op, nil).
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Calls returns how many times op was invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// PutPost seeds a post without touching counters or notifying watchers.
func (s *Store) PutPost(post entities.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[post.ID] = post.Clone()
}

// PutVote seeds a vote record.
func (s *Store) PutVote(vote entities.Vote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[voteKey{vote.VoterID, vote.PostID}] = vote
}

// PutComment seeds a comment.
func (s *Store) PutComment(comment entities.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[comment.ID] = comment
}

// Broadcast pushes the current active set to every watcher.
func (s *Store) Broadcast() {
	s.notify()
}

// begin records the call and returns the injected failure, if any. Callers hold s.mu.
func (s *Store) begin(op string) error {
	s.calls[op]++
	return s.failures[op]
}

func (s *Store) QueryActivePosts(ctx context.Context, q ports.PostQuery) (ports.PostPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpQueryActivePosts); err != nil {
		return ports.PostPage{}, err
	}
	if err := ctx.Err(); err != nil {
		return ports.PostPage{}, err
	}

	live := s.activeLocked(q.Now)
	start := 0
	if q.Cursor != "" {
		after, err := decodePostCursor(q.Cursor)
		if err != nil {
			return ports.PostPage{}, err
		}
		start = sort.Search(len(live), func(i int) bool { return after.Before(live[i]) })
	}
	return pageOf(live[start:], q.Limit, encodePostCursor), nil
}

func (s *Store) GetPost(ctx context.Context, id string) (*entities.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpGetPost); err != nil {
		return nil, err
	}
	p, ok := s.posts[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("post")
	}
	out := p.Clone()
	return &out, nil
}

func (s *Store) QueryPostsByAuthor(ctx context.Context, authorID string, limit int, cursor string) (ports.PostPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpQueryPostsByAuthor); err != nil {
		return ports.PostPage{}, err
	}

	var mine []entities.Post
	for _, p := range s.posts {
		if p.AuthorID == authorID {
			mine = append(mine, p.Clone())
		}
	}
	newestFirst := func(a, b entities.Post) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	}
	sort.Slice(mine, func(i, j int) bool { return newestFirst(mine[i], mine[j]) })

	start := 0
	if cursor != "" {
		after, err := decodePostCursor(cursor)
		if err != nil {
			return ports.PostPage{}, err
		}
		start = sort.Search(len(mine), func(i int) bool { return newestFirst(after, mine[i]) })
	}
	return pageOf(mine[start:], limit, encodePostCursor), nil
}

func (s *Store) WatchActivePosts(ctx context.Context, q ports.WatchQuery, onSnapshot func([]entities.Post)) (ports.Unsubscribe, error) {
	if q.Now == nil {
		q.Now = time.Now
	}
	s.mu.Lock()
	if err := s.begin(OpWatchActivePosts); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = watcher{query: q, fn: onSnapshot}
	initial := limitPosts(s.activeLocked(q.Now()), q.Limit)
	s.mu.Unlock()

	onSnapshot(initial)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}, nil
}

func (s *Store) CreatePost(ctx context.Context, post entities.Post) error {
	s.mu.Lock()
	if err := s.begin(OpCreatePost); err != nil {
		s.mu.Unlock()
		return err
	}
	s.posts[post.ID] = post.Clone()
	u := s.users[post.AuthorID]
	u.ID = post.AuthorID
	u.NotesCount++
	s.users[u.ID] = u
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *Store) DeactivatePost(ctx context.Context, postID string) error {
	s.mu.Lock()
	if err := s.begin(OpDeactivatePost); err != nil {
		s.mu.Unlock()
		return err
	}
	p, ok := s.posts[postID]
	if !ok {
		s.mu.Unlock()
		return pkgerrors.NewNotFoundError("post")
	}
	p.IsActive = false
	s.posts[postID] = p
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *Store) GetUserVote(ctx context.Context, voterID, postID string) (*entities.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpGetUserVote); err != nil {
		return nil, err
	}
	v, ok := s.votes[voteKey{voterID, postID}]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// CommitVote applies the whole batch or nothing.
func (s *Store) CommitVote(ctx context.Context, batch ports.VoteBatch) error {
	s.mu.Lock()
	if err := s.begin(OpCommitVote); err != nil {
		s.mu.Unlock()
		return err
	}
	post, ok := s.posts[batch.PostID]
	if !ok {
		s.mu.Unlock()
		return pkgerrors.NewNotFoundError("post")
	}

	key := voteKey{batch.VoterID, batch.PostID}
	if batch.Next != nil {
		s.votes[key] = *batch.Next
	} else {
		delete(s.votes, key)
	}
	post.Upvotes += batch.Transition.UpDelta
	post.Downvotes += batch.Transition.DownDelta
	s.posts[batch.PostID] = post

	u := s.users[batch.VoterID]
	u.ID = batch.VoterID
	u.VotesCount += batch.Transition.TallyDelta
	s.users[u.ID] = u
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *Store) QueryComments(ctx context.Context, postID string, limit int, cursor string) (ports.CommentPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpQueryComments); err != nil {
		return ports.CommentPage{}, err
	}

	var list []entities.Comment
	for _, c := range s.comments {
		if c.PostID == postID {
			list = append(list, c)
		}
	}
	newestFirst := func(a, b entities.Comment) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	}
	sort.Slice(list, func(i, j int) bool { return newestFirst(list[i], list[j]) })

	start := 0
	if cursor != "" {
		var after entities.Comment
		if err := decodeCursor(cursor, &after); err != nil {
			return ports.CommentPage{}, err
		}
		start = sort.Search(len(list), func(i int) bool { return newestFirst(after, list[i]) })
	}
	list = list[start:]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	page := ports.CommentPage{Comments: list}
	if n := len(list); n > 0 {
		last := list[n-1]
		page.NextCursor = encodeCursor(entities.Comment{ID: last.ID, CreatedAt: last.CreatedAt})
	}
	return page, nil
}

func (s *Store) GetComment(ctx context.Context, id string) (*entities.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpGetComment); err != nil {
		return nil, err
	}
	c, ok := s.comments[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("comment")
	}
	return &c, nil
}

func (s *Store) CreateComment(ctx context.Context, comment entities.Comment) error {
	s.mu.Lock()
	if err := s.begin(OpCreateComment); err != nil {
		s.mu.Unlock()
		return err
	}
	post, ok := s.posts[comment.PostID]
	if !ok {
		s.mu.Unlock()
		return pkgerrors.NewNotFoundError("post")
	}
	comment.Pending = false
	s.comments[comment.ID] = comment
	post.CommentsCount++
	s.posts[post.ID] = post
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *Store) DeleteComment(ctx context.Context, comment entities.Comment) error {
	s.mu.Lock()
	if err := s.begin(OpDeleteComment); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := s.comments[comment.ID]; !ok {
		s.mu.Unlock()
		return pkgerrors.NewNotFoundError("comment")
	}
	delete(s.comments, comment.ID)
	if post, ok := s.posts[comment.PostID]; ok {
		post.CommentsCount = max(0, post.CommentsCount-1)
		s.posts[post.ID] = post
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*entities.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpGetUser); err != nil {
		return nil, err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("user")
	}
	return &u, nil
}

func (s *Store) SaveUser(ctx context.Context, user entities.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpSaveUser); err != nil {
		return err
	}
	if existing, ok := s.users[user.ID]; ok {
		user.NotesCount = existing.NotesCount
		user.VotesCount = existing.VotesCount
	}
	s.users[user.ID] = user
	return nil
}

func (s *Store) activeLocked(now time.Time) []entities.Post {
	live := make([]entities.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if p.IsLive(now) {
			live = append(live, p.Clone())
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].Before(live[j]) })
	return live
}

func (s *Store) notify() {
	s.mu.Lock()
	type delivery struct {
		fn    func([]entities.Post)
		posts []entities.Post
	}
	deliveries := make([]delivery, 0, len(s.watchers))
	for _, w := range s.watchers {
		deliveries = append(deliveries, delivery{fn: w.fn, posts: limitPosts(s.activeLocked(w.query.Now()), w.query.Limit)})
	}
	s.mu.Unlock()

	for _, d := range deliveries {
		d.fn(d.posts)
	}
}

func limitPosts(posts []entities.Post, limit int) []entities.Post {
	if limit > 0 && len(posts) > limit {
		return posts[:limit]
	}
	return posts
}

func pageOf(posts []entities.Post, limit int, encode func(entities.Post) string) ports.PostPage {
	posts = limitPosts(posts, limit)
	page := ports.PostPage{Posts: posts}
	if n := len(posts); n > 0 {
		page.NextCursor = encode(posts[n-1])
	}
	return page
}

// postCursor keeps only the fields the feed orders on.
type postCursor struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

func encodePostCursor(p entities.Post) string {
	return encodeCursor(postCursor{ID: p.ID, ExpiresAt: p.ExpiresAt, CreatedAt: p.CreatedAt})
}

func decodePostCursor(cursor string) (entities.Post, error) {
	var c postCursor
	if err := decodeCursor(cursor, &c); err != nil {
		return entities.Post{}, err
	}
	return entities.Post{ID: c.ID, ExpiresAt: c.ExpiresAt, CreatedAt: c.CreatedAt}, nil
}

func encodeCursor(v interface{}) string {
	data, _ := json.Marshal(v)
	return base64.URLEncoding.EncodeToString(data)
}

func decodeCursor(cursor string, v interface{}) error {
	data, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return pkgerrors.InvalidCursor(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return pkgerrors.InvalidCursor(err)
	}
	return nil
}
