package feed

import (
	"fmt"
	"hash/fnv"
	"sync"

	"locallens/domain/core/entities"
	"locallens/domain/core/valueobjects"
)

// CachePage is one page of a feed as shown to the user.
type CachePage struct {
	Posts   []entities.Post `json:"posts"`
	HasMore bool            `json:"hasMore"`
	Cursor  string          `json:"cursor,omitempty"`
}

// CommentPage is one page of a post's comments, newest first.
type CommentPage struct {
	Comments []entities.Comment `json:"comments"`
	HasMore  bool               `json:"hasMore"`
	Cursor   string             `json:"cursor,omitempty"`
}

// EventKind names a cache change.
type EventKind int

const (
	FeedUpdated EventKind = iota
	FeedInvalidated
	PostUpdated
	CommentsUpdated
	CommentsInvalidated
)

func (k EventKind) String() string {
	switch k {
	case FeedUpdated:
		return "feed_updated"
	case FeedInvalidated:
		return "feed_invalidated"
	case PostUpdated:
		return "post_updated"
	case CommentsUpdated:
		return "comments_updated"
	case CommentsInvalidated:
		return "comments_invalidated"
	default:
		return "unknown"
	}
}

// Event is delivered to cache listeners after the change is visible.
type Event struct {
	Kind    EventKind
	Key     string
	Context valueobjects.SearchContext
	PostID  string
}

type feedEntry struct {
	context valueobjects.SearchContext
	pages   []CachePage
	version uint64
	stale   bool
}

type commentEntry struct {
	pages []CommentPage
	stale bool
}

// counters are the fields an optimistic vote or comment touches on a post.
type counters struct {
	Upvotes       int
	Downvotes     int
	CommentsCount int
	UserVote      valueobjects.VoteDirection
}

// detailLocation addresses the single-post cache in snapshots.
const detailLocation = "detail"

// PostSnapshot captures every cached copy of one post so it can be restored.
type PostSnapshot struct {
	PostID    string
	vote      valueobjects.VoteDirection
	voteKnown bool
	copies    map[string]counters
}

// Cache is the local query cache: one page chain per SearchContext, a
// single-post cache, the current user's votes, and comment pages per post.
// Every method is atomic with respect to the others.
type Cache struct {
	mu        sync.RWMutex
	feeds     map[string]*feedEntry
	details   map[string]entities.Post
	votes     map[string]valueobjects.VoteDirection
	comments  map[string]*commentEntry
	listeners map[int]func(Event)
	nextID    int
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		feeds:     make(map[string]*feedEntry),
		details:   make(map[string]entities.Post),
		votes:     make(map[string]valueobjects.VoteDirection),
		comments:  make(map[string]*commentEntry),
		listeners: make(map[int]func(Event)),
	}
}

// Subscribe registers a listener and returns its disposer.
func (c *Cache) Subscribe(fn func(Event)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Cache) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	c.mu.RLock()
	fns := make([]func(Event), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// Pages returns a copy of the page chain for a context key.
func (c *Cache) Pages(key string) []CachePage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.feeds[key]
	if !ok {
		return nil
	}
	return clonePages(entry.pages)
}

// Posts flattens the page chain for a context key.
func (c *Cache) Posts(key string) []entities.Post {
	var out []entities.Post
	for _, p := range c.Pages(key) {
		out = append(out, p.Posts...)
	}
	return out
}

// Version increases every time the chain for key changes.
func (c *Cache) Version(key string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.feeds[key]; ok {
		return entry.version
	}
	return 0
}

// IsStale reports whether the chain for key was invalidated since it was last loaded.
func (c *Cache) IsStale(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.feeds[key]
	return !ok || entry.stale
}

// SetPages replaces the whole chain for a context.
func (c *Cache) SetPages(sc valueobjects.SearchContext, pages []CachePage) {
	key := sc.Key()
	c.mu.Lock()
	entry := c.entryLocked(sc)
	entry.pages = clonePages(pages)
	entry.stale = false
	entry.version++
	for _, p := range pages {
		c.recordVotesLocked(p.Posts)
	}
	c.mu.Unlock()

	c.emit(Event{Kind: FeedUpdated, Key: key, Context: sc})
}

// AppendPage adds a page to the end of the chain.
func (c *Cache) AppendPage(sc valueobjects.SearchContext, page CachePage) {
	key := sc.Key()
	c.mu.Lock()
	entry := c.entryLocked(sc)
	entry.pages = append(entry.pages, clonePage(page))
	entry.version++
	c.recordVotesLocked(page.Posts)
	c.mu.Unlock()

	c.emit(Event{Kind: FeedUpdated, Key: key, Context: sc})
}

// ReplaceFirstPage swaps in a new first page and drops the rest of the chain,
// whose cursors were derived from the old first page. It returns false and
// changes nothing when the new page is identical to the current one.
func (c *Cache) ReplaceFirstPage(sc valueobjects.SearchContext, page CachePage) bool {
	key := sc.Key()
	c.mu.Lock()
	entry := c.entryLocked(sc)
	if len(entry.pages) == 1 && fingerprint(entry.pages[0]) == fingerprint(page) {
		c.mu.Unlock()
		return false
	}
	entry.pages = []CachePage{clonePage(page)}
	entry.stale = false
	entry.version++
	c.recordVotesLocked(page.Posts)
	c.mu.Unlock()

	c.emit(Event{Kind: FeedUpdated, Key: key, Context: sc})
	return true
}

// InsertPost puts a new post at the head of the first page of a context.
func (c *Cache) InsertPost(sc valueobjects.SearchContext, post entities.Post) {
	key := sc.Key()
	c.mu.Lock()
	entry := c.entryLocked(sc)
	if len(entry.pages) == 0 {
		entry.pages = []CachePage{{}}
	}
	first := &entry.pages[0]
	first.Posts = append([]entities.Post{post.Clone()}, first.Posts...)
	entry.version++
	c.mu.Unlock()

	c.emit(Event{Kind: FeedUpdated, Key: key, Context: sc})
}

// RemovePost drops a post from every page chain and the single-post cache.
func (c *Cache) RemovePost(postID string) {
	var events []Event
	c.mu.Lock()
	for key, entry := range c.feeds {
		removed := false
		for i := range entry.pages {
			kept := entry.pages[i].Posts[:0]
			for _, p := range entry.pages[i].Posts {
				if p.ID == postID {
					removed = true
					continue
				}
				kept = append(kept, p)
			}
			entry.pages[i].Posts = kept
		}
		if removed {
			entry.version++
			events = append(events, Event{Kind: FeedUpdated, Key: key, Context: entry.context})
		}
	}
	delete(c.details, postID)
	c.mu.Unlock()

	c.emit(events...)
}

// Invalidate marks a context stale and notifies listeners so they can refetch.
func (c *Cache) Invalidate(sc valueobjects.SearchContext) {
	key := sc.Key()
	c.mu.Lock()
	c.entryLocked(sc).stale = true
	c.mu.Unlock()

	c.emit(Event{Kind: FeedInvalidated, Key: key, Context: sc})
}

// Post returns a cached copy of a post from the single-post cache or any page.
func (c *Cache) Post(postID string) (entities.Post, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.details[postID]; ok {
		return p.Clone(), true
	}
	for _, entry := range c.feeds {
		for _, page := range entry.pages {
			for _, p := range page.Posts {
				if p.ID == postID {
					return p.Clone(), true
				}
			}
		}
	}
	return entities.Post{}, false
}

// SetPost stores a post in the single-post cache.
func (c *Cache) SetPost(post entities.Post) {
	c.mu.Lock()
	c.details[post.ID] = post.Clone()
	c.mu.Unlock()

	c.emit(Event{Kind: PostUpdated, PostID: post.ID})
}

// UserVote returns the current user's cached vote on a post.
func (c *Cache) UserVote(postID string) (valueobjects.VoteDirection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.votes[postID]
	return v, ok
}

// ClearVotes forgets every cached vote after the user changes. Cached copies
// lose their vote state and every feed is marked stale so it is refetched
// for the new user.
func (c *Cache) ClearVotes() {
	var events []Event
	c.mu.Lock()
	c.votes = make(map[string]valueobjects.VoteDirection)
	for id, p := range c.details {
		p.UserVote = valueobjects.VoteNone
		c.details[id] = p
	}
	for key, entry := range c.feeds {
		for i := range entry.pages {
			for j := range entry.pages[i].Posts {
				entry.pages[i].Posts[j].UserVote = valueobjects.VoteNone
			}
		}
		entry.stale = true
		events = append(events, Event{Kind: FeedInvalidated, Key: key, Context: entry.context})
	}
	c.mu.Unlock()

	c.emit(events...)
}

// SnapshotPost captures the vote state and counters of every cached copy of a post.
func (c *Cache) SnapshotPost(postID string) PostSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := PostSnapshot{PostID: postID, copies: make(map[string]counters)}
	snap.vote, snap.voteKnown = c.votes[postID]
	if p, ok := c.details[postID]; ok {
		snap.copies[detailLocation] = countersOf(p)
	}
	for key, entry := range c.feeds {
		for _, page := range entry.pages {
			for _, p := range page.Posts {
				if p.ID == postID {
					snap.copies[key] = countersOf(p)
				}
			}
		}
	}
	return snap
}

// RestorePost writes a snapshot back. Copies that have since left the cache
// stay gone.
func (c *Cache) RestorePost(snap PostSnapshot) {
	c.mu.Lock()
	if snap.voteKnown {
		c.votes[snap.PostID] = snap.vote
	} else {
		delete(c.votes, snap.PostID)
	}
	if saved, ok := snap.copies[detailLocation]; ok {
		if p, ok := c.details[snap.PostID]; ok {
			setCounters(&p, saved)
			c.details[snap.PostID] = p
		}
	}
	events := c.updateFeedsLocked(snap.PostID, func(key string, p *entities.Post) {
		if saved, ok := snap.copies[key]; ok {
			setCounters(p, saved)
		}
	})
	c.mu.Unlock()

	c.emit(append(events, Event{Kind: PostUpdated, PostID: snap.PostID})...)
}

// ApplyVote applies a vote transition to every cached copy of a post.
func (c *Cache) ApplyVote(postID string, t valueobjects.Transition) {
	c.mu.Lock()
	c.votes[postID] = t.To
	if p, ok := c.details[postID]; ok {
		p.ApplyTransition(t)
		c.details[postID] = p
	}
	events := c.updateFeedsLocked(postID, func(_ string, p *entities.Post) {
		p.ApplyTransition(t)
	})
	c.mu.Unlock()

	c.emit(append(events, Event{Kind: PostUpdated, PostID: postID})...)
}

// Reconcile overwrites counters and vote state with authoritative values.
// A nil post means only the vote is known.
func (c *Cache) Reconcile(postID string, post *entities.Post, vote valueobjects.VoteDirection) {
	c.mu.Lock()
	c.votes[postID] = vote
	apply := func(p *entities.Post) {
		p.UserVote = vote
		if post != nil {
			p.Upvotes = post.Upvotes
			p.Downvotes = post.Downvotes
			p.CommentsCount = post.CommentsCount
		}
	}
	if p, ok := c.details[postID]; ok {
		apply(&p)
		c.details[postID] = p
	}
	events := c.updateFeedsLocked(postID, func(_ string, p *entities.Post) { apply(p) })
	c.mu.Unlock()

	c.emit(append(events, Event{Kind: PostUpdated, PostID: postID})...)
}

// AdjustCommentsCount adds delta to the comment counter of every cached copy.
func (c *Cache) AdjustCommentsCount(postID string, delta int) {
	c.mu.Lock()
	if p, ok := c.details[postID]; ok {
		p.CommentsCount = max(0, p.CommentsCount+delta)
		c.details[postID] = p
	}
	events := c.updateFeedsLocked(postID, func(_ string, p *entities.Post) {
		p.CommentsCount = max(0, p.CommentsCount+delta)
	})
	c.mu.Unlock()

	c.emit(append(events, Event{Kind: PostUpdated, PostID: postID})...)
}

// CommentPages returns a copy of the comment chain of a post.
func (c *Cache) CommentPages(postID string) []CommentPage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.comments[postID]
	if !ok {
		return nil
	}
	return cloneCommentPages(entry.pages)
}

// CommentsStale reports whether a post's comments are missing or invalidated.
func (c *Cache) CommentsStale(postID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.comments[postID]
	return !ok || entry.stale
}

// SetCommentPages replaces the comment chain of a post.
func (c *Cache) SetCommentPages(postID string, pages []CommentPage) {
	c.mu.Lock()
	entry := c.commentEntryLocked(postID)
	entry.pages = cloneCommentPages(pages)
	entry.stale = false
	c.mu.Unlock()

	c.emit(Event{Kind: CommentsUpdated, PostID: postID})
}

// AppendCommentPage adds a page to the end of a post's comment chain.
func (c *Cache) AppendCommentPage(postID string, page CommentPage) {
	c.mu.Lock()
	entry := c.commentEntryLocked(postID)
	entry.pages = append(entry.pages, cloneCommentPages([]CommentPage{page})...)
	c.mu.Unlock()

	c.emit(Event{Kind: CommentsUpdated, PostID: postID})
}

// InsertComment puts a comment at the head of the first comment page.
func (c *Cache) InsertComment(postID string, comment entities.Comment) {
	c.mu.Lock()
	entry := c.commentEntryLocked(postID)
	if len(entry.pages) == 0 {
		entry.pages = []CommentPage{{}}
	}
	entry.pages[0].Comments = append([]entities.Comment{comment}, entry.pages[0].Comments...)
	c.mu.Unlock()

	c.emit(Event{Kind: CommentsUpdated, PostID: postID})
}

// CommentPosition locates a comment inside a post's chain.
type CommentPosition struct {
	Page  int
	Index int
}

// RemoveComment drops a comment and reports where it was.
func (c *Cache) RemoveComment(postID, commentID string) (entities.Comment, CommentPosition, bool) {
	c.mu.Lock()
	entry, ok := c.comments[postID]
	if !ok {
		c.mu.Unlock()
		return entities.Comment{}, CommentPosition{}, false
	}
	for pi := range entry.pages {
		for ci, cm := range entry.pages[pi].Comments {
			if cm.ID != commentID {
				continue
			}
			list := entry.pages[pi].Comments
			entry.pages[pi].Comments = append(append([]entities.Comment(nil), list[:ci]...), list[ci+1:]...)
			c.mu.Unlock()
			c.emit(Event{Kind: CommentsUpdated, PostID: postID})
			return cm, CommentPosition{Page: pi, Index: ci}, true
		}
	}
	c.mu.Unlock()
	return entities.Comment{}, CommentPosition{}, false
}

// RestoreComment puts a removed comment back where it was, or at the head
// when the chain has shrunk since.
func (c *Cache) RestoreComment(postID string, comment entities.Comment, pos CommentPosition) {
	c.mu.Lock()
	entry := c.commentEntryLocked(postID)
	if pos.Page >= len(entry.pages) || pos.Index > len(entry.pages[pos.Page].Comments) {
		pos = CommentPosition{}
		if len(entry.pages) == 0 {
			entry.pages = []CommentPage{{}}
		}
	}
	list := entry.pages[pos.Page].Comments
	restored := make([]entities.Comment, 0, len(list)+1)
	restored = append(restored, list[:pos.Index]...)
	restored = append(restored, comment)
	restored = append(restored, list[pos.Index:]...)
	entry.pages[pos.Page].Comments = restored
	c.mu.Unlock()

	c.emit(Event{Kind: CommentsUpdated, PostID: postID})
}

// Comment finds a cached comment by id.
func (c *Cache) Comment(postID, commentID string) (entities.Comment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.comments[postID]
	if !ok {
		return entities.Comment{}, false
	}
	for _, page := range entry.pages {
		for _, cm := range page.Comments {
			if cm.ID == commentID {
				return cm, true
			}
		}
	}
	return entities.Comment{}, false
}

// InvalidateComments marks a post's comments stale and notifies listeners.
func (c *Cache) InvalidateComments(postID string) {
	c.mu.Lock()
	c.commentEntryLocked(postID).stale = true
	c.mu.Unlock()

	c.emit(Event{Kind: CommentsInvalidated, PostID: postID})
}

func (c *Cache) entryLocked(sc valueobjects.SearchContext) *feedEntry {
	key := sc.Key()
	entry, ok := c.feeds[key]
	if !ok {
		entry = &feedEntry{context: sc}
		c.feeds[key] = entry
	}
	return entry
}

func (c *Cache) commentEntryLocked(postID string) *commentEntry {
	entry, ok := c.comments[postID]
	if !ok {
		entry = &commentEntry{}
		c.comments[postID] = entry
	}
	return entry
}

func (c *Cache) recordVotesLocked(posts []entities.Post) {
	for _, p := range posts {
		c.votes[p.ID] = p.UserVote
	}
}

// updateFeedsLocked runs fn on every copy of a post in every chain and
// returns the update events to emit after unlocking.
func (c *Cache) updateFeedsLocked(postID string, fn func(key string, p *entities.Post)) []Event {
	var events []Event
	for key, entry := range c.feeds {
		touched := false
		for pi := range entry.pages {
			posts := entry.pages[pi].Posts
			for i := range posts {
				if posts[i].ID == postID {
					fn(key, &posts[i])
					touched = true
				}
			}
		}
		if touched {
			entry.version++
			events = append(events, Event{Kind: FeedUpdated, Key: key, Context: entry.context})
		}
	}
	return events
}

func countersOf(p entities.Post) counters {
	return counters{
		Upvotes:       p.Upvotes,
		Downvotes:     p.Downvotes,
		CommentsCount: p.CommentsCount,
		UserVote:      p.UserVote,
	}
}

func setCounters(p *entities.Post, c counters) {
	p.Upvotes = c.Upvotes
	p.Downvotes = c.Downvotes
	p.CommentsCount = c.CommentsCount
	p.UserVote = c.UserVote
}

func clonePage(p CachePage) CachePage {
	out := CachePage{HasMore: p.HasMore, Cursor: p.Cursor, Posts: make([]entities.Post, len(p.Posts))}
	for i, post := range p.Posts {
		out.Posts[i] = post.Clone()
	}
	return out
}

func clonePages(pages []CachePage) []CachePage {
	if pages == nil {
		return nil
	}
	out := make([]CachePage, len(pages))
	for i, p := range pages {
		out[i] = clonePage(p)
	}
	return out
}

func cloneCommentPages(pages []CommentPage) []CommentPage {
	if pages == nil {
		return nil
	}
	out := make([]CommentPage, len(pages))
	for i, p := range pages {
		out[i] = CommentPage{
			Comments: append([]entities.Comment(nil), p.Comments...),
			HasMore:  p.HasMore,
			Cursor:   p.Cursor,
		}
	}
	return out
}

// fingerprint identifies the observable content of a page.
func fingerprint(p CachePage) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%t|%s|", p.HasMore, p.Cursor)
	for _, post := range p.Posts {
		fmt.Fprintf(h, "%s|%d|%d|%d|%s|%t|%d|%s;",
			post.ID, post.Upvotes, post.Downvotes, post.CommentsCount,
			post.UserVote, post.IsActive, post.ExpiresAt.UnixNano(), post.Content)
	}
	return h.Sum64()
}
