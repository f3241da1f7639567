package repository

import (
	"sort"
	"strings"

	"marketchat/internal/domain/entity"
	"marketchat/pkg/errors"
)

// pageWindow maps a newest-first page onto an ascending log of total items
// and returns the [start, end) slice bounds.
func pageWindow(total, limit, offset int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	end := total - offset
	if end <= 0 {
		return 0, 0
	}
	start := 0
	if limit > 0 {
		start = end - limit
		if start < 0 {
			start = 0
		}
	}
	return start, end
}

// paginate applies limit/offset to an already ordered slice.
func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	if offset < 0 {
		offset = 0
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func sameParticipants(a, b []string) bool {
	a = entity.NormalizeParticipants(a)
	b = entity.NormalizeParticipants(b)
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func sortByUpdatedDesc(convs []*entity.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
}

func validateNewConversation(conv *entity.Conversation) error {
	conv.Participants = entity.NormalizeParticipants(conv.Participants)
	if len(conv.Participants) < 2 {
		return errors.Validation("A conversation needs at least two participants", nil)
	}
	if strings.TrimSpace(conv.ListingID) == "" {
		return errors.Validation("listing_id is required", nil)
	}
	if conv.SellerID != "" && !conv.HasParticipant(conv.SellerID) {
		return errors.Validation("seller must be a participant", nil)
	}
	return nil
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func conversationNotFound() error {
	return errors.NotFound("Conversation", nil)
}

func conflictError(id string) error {
	return errors.Conflict("Conversation " + id + " already exists")
}
