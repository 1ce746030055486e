package web

import (
	"fmt"
	"strconv"

	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/vocab"
	"github.com/gin-gonic/gin"
)

const itemsPerPage = 20

// handleOutbox returns an OrderedCollection of a user's public posts.
// This allows remote servers to discover posts without following the user.
func (s *server) handleOutbox(c *gin.Context) {
	ctx := c.Request.Context()
	acc, err := s.store.ReadAccByUsername(ctx, c.Param("actor"))
	if err != nil {
		s.lookupFailed(c, err)
		return
	}
	notes, err := s.store.ReadNotesByUserId(ctx, acc.Id)
	if err != nil {
		s.serverError(c, "Failed to read notes", err)
		return
	}
	notes = publicNotes(notes)

	outboxURL := s.urls.Outbox(acc.Username)
	page := ParsePageParam(c.Query("page"))

	// If no page parameter, return the collection metadata
	if page == 0 {
		collection := vocab.NewGeneric("OrderedCollection")
		collection.SetID(outboxURL)
		collection.Set("total_items", len(notes))
		collection.Set("first", fmt.Sprintf("%s?page=1", outboxURL))
		s.renderActivity(c, collection)
		return
	}

	start := (page - 1) * itemsPerPage
	end := min(start+itemsPerPage, len(notes))
	start = min(start, len(notes))

	items := make([]any, 0, end-start)
	for i := range notes[start:end] {
		note := &notes[start+i]
		obj, err := s.outbox.NoteObject(acc, note)
		if err != nil {
			s.serverError(c, "Failed to render note", err)
			return
		}
		create := vocab.NewActivity("Create")
		create.SetID(obj.ID() + "/activity")
		create.SetObject(obj)
		items = append(items, create)
	}

	collectionPage := vocab.NewGeneric("OrderedCollectionPage")
	collectionPage.SetID(fmt.Sprintf("%s?page=%d", outboxURL, page))
	collectionPage.Set("part_of", outboxURL)
	collectionPage.Set("ordered_items", items)

	// Add next link if there are more pages
	if end < len(notes) {
		collectionPage.Set("next", fmt.Sprintf("%s?page=%d", outboxURL, page+1))
	}

	// Add prev link if not first page
	if page > 1 {
		collectionPage.Set("prev", fmt.Sprintf("%s?page=%d", outboxURL, page-1))
	}

	s.renderActivity(c, collectionPage)
}

// handleCollection serves the size of a follower or following list. The
// members themselves are not disclosed.
func (s *server) handleCollection(dir domain.Direction) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		acc, err := s.store.ReadAccByUsername(ctx, c.Param("actor"))
		if err != nil {
			s.lookupFailed(c, err)
			return
		}
		rels, err := s.store.ReadRelationshipsByAccount(ctx, acc.Id, dir, domain.StateAccepted)
		if err != nil {
			s.serverError(c, "Failed to read relationships", err)
			return
		}

		id := s.urls.Followers(acc.Username)
		if dir == domain.Outbound {
			id = s.urls.Following(acc.Username)
		}
		collection := vocab.NewGeneric("OrderedCollection")
		collection.SetID(id)
		collection.Set("total_items", len(rels))
		s.renderActivity(c, collection)
	}
}

func publicNotes(notes []domain.Note) []domain.Note {
	out := notes[:0:0]
	for _, n := range notes {
		if n.Visibility == domain.VisibilityPublic || n.Visibility == domain.VisibilityQuietPublic {
			out = append(out, n)
		}
	}
	return out
}

// ParsePageParam extracts the page parameter from a query string
func ParsePageParam(pageStr string) int {
	if pageStr == "" {
		return 0
	}
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 0 {
		return 0
	}
	return page
}
