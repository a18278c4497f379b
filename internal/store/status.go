package store

import (
	"sort"
	"strings"
	"time"

	"studygroup-chat/internal/models"
)

// StatusOf derives the sender-side status from receipt counts: read once
// every recipient read it, delivered once every recipient received it.
// TotalRecipients excludes the sender, so the sender's own receipt entries
// are not counted. Messages without a recipient count stay sent.
func StatusOf(m models.Message) models.Status {
	total := m.TotalRecipients
	if total <= 0 {
		return models.StatusSent
	}
	if receipts(m.ReadBy, m.SenderID) >= total {
		return models.StatusRead
	}
	if receipts(m.DeliveredBy, m.SenderID) >= total {
		return models.StatusDelivered
	}
	return models.StatusSent
}

func receipts(ids []models.ID, sender models.ID) int {
	n := 0
	for _, id := range ids {
		if id != sender {
			n++
		}
	}
	return n
}

// Merge combines a fetched history page with the live sequence. Entries are
// deduplicated by identity, the live copy winning, and stably sorted by
// timestamp.
func Merge(history, live []models.Message) []models.Message {
	out := make([]models.Message, 0, len(history)+len(live))
	pos := make(map[string]int, len(history)+len(live))
	add := func(m models.Message) {
		id := m.Identity()
		if id != "" {
			if i, ok := pos[id]; ok {
				out[i] = m.Clone()
				return
			}
			pos[id] = len(out)
		}
		out = append(out, m.Clone())
	}
	for _, m := range history {
		add(m)
	}
	for _, m := range live {
		add(m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func indexOf(seq []models.Message, identity string) int {
	if identity == "" {
		return -1
	}
	for i := range seq {
		if seq[i].Identity() == identity {
			return i
		}
	}
	return -1
}

func indexOfPoll(seq []models.Message, pollID models.ID) int {
	if pollID == "" {
		return -1
	}
	for i := range seq {
		if seq[i].Poll != nil && seq[i].Poll.ID == pollID {
			return i
		}
	}
	return -1
}

// placeholderFor finds the optimistic local entry that m confirms. Polls
// match on question and creator; everything else on type, sender and
// content within the reconcile window.
func (s *Store) placeholderFor(seq []models.Message, m models.Message) int {
	now := s.now()
	for i := range seq {
		p := seq[i]
		if !p.IsTemporary() || p.Type != m.Type {
			continue
		}
		if m.Type == models.TypePoll {
			if p.Poll != nil && m.Poll != nil &&
				strings.TrimSpace(p.Poll.Question) == strings.TrimSpace(m.Poll.Question) &&
				p.Poll.CreatorID == pollCreator(m) {
				return i
			}
			continue
		}
		if p.SenderID != m.SenderID || p.Content != m.Content {
			continue
		}
		if within(p.Timestamp, m.Timestamp, s.cfg.ReconcileWindow) || within(p.Timestamp, now, s.cfg.ReconcileWindow) {
			return i
		}
	}
	return -1
}

func pollCreator(m models.Message) models.ID {
	if m.Poll.CreatorID != "" {
		return m.Poll.CreatorID
	}
	return m.SenderID
}

// adoptPlaceholder returns the server copy, keeping local fields it omits.
func adoptPlaceholder(local, server models.Message) models.Message {
	if server.SenderName == "" {
		server.SenderName = local.SenderName
	}
	if server.TotalRecipients <= 0 {
		server.TotalRecipients = local.TotalRecipients
	}
	server.DeliveredBy = union(local.DeliveredBy, server.DeliveredBy)
	server.ReadBy = union(local.ReadBy, server.ReadBy)
	if server.Type == models.TypeFile {
		if server.FileURL == "" {
			server.FileURL = local.FileURL
		}
		if server.FileType == "" {
			server.FileType = local.FileType
		}
		if server.Size == 0 {
			server.Size = local.Size
		}
	}
	if server.Poll != nil && local.Poll != nil {
		if len(server.Poll.Options) == 0 {
			server.Poll.Options = local.Poll.Clone().Options
		}
		if server.Poll.CreatorName == "" {
			server.Poll.CreatorName = local.Poll.CreatorName
		}
		if server.Poll.CreatedAt.IsZero() {
			server.Poll.CreatedAt = local.Poll.CreatedAt
		}
		if server.ID == "" || server.ID == local.ID {
			server.ID = server.Poll.ID
		}
	}
	return server
}

// mergePoll applies the fields present in patch onto p.
func mergePoll(p *models.Poll, patch models.PollPatch) {
	if patch.Question != nil {
		p.Question = *patch.Question
	}
	if patch.AllowMultiple != nil {
		p.AllowMultiple = *patch.AllowMultiple
	}
	if patch.Anonymous != nil {
		p.Anonymous = *patch.Anonymous
	}
	if patch.CreatorID != nil {
		p.CreatorID = *patch.CreatorID
	}
	if patch.CreatorName != nil {
		p.CreatorName = *patch.CreatorName
	}
	if patch.Options != nil {
		for _, opt := range patch.Options {
			i := optionIndex(p.Options, opt.ID)
			if i < 0 {
				p.Options = append(p.Options, models.PollOption{ID: opt.ID, Text: opt.Text, Votes: append([]models.ID(nil), opt.Votes...)})
				continue
			}
			if opt.Text != "" {
				p.Options[i].Text = opt.Text
			}
			if opt.Votes != nil {
				p.Options[i].Votes = append([]models.ID(nil), opt.Votes...)
			}
		}
	}
	switch {
	case patch.TotalVotes != nil:
		p.TotalVotes = *patch.TotalVotes
	case patch.Options != nil:
		p.TotalVotes = countVotes(p.Options)
	}
}

func optionIndex(opts []models.PollOption, id models.ID) int {
	for i := range opts {
		if opts[i].ID == id {
			return i
		}
	}
	return -1
}

func countVotes(opts []models.PollOption) int {
	n := 0
	for _, o := range opts {
		n += len(o.Votes)
	}
	return n
}

// mergeSession updates dst with the fields set in src.
func mergeSession(dst, src *models.Session) {
	if src.Title != "" {
		dst.Title = src.Title
	}
	dst.IsPoll = src.IsPoll
	dst.Confirmed = dst.Confirmed || src.Confirmed
	if src.StartTime != nil {
		dst.StartTime = src.StartTime
	}
	if src.EndTime != nil {
		dst.EndTime = src.EndTime
	}
	if src.TimeSlots != nil {
		dst.TimeSlots = src.Clone().TimeSlots
	}
	if src.RSVPByUser != nil {
		dst.RSVPByUser = src.Clone().RSVPByUser
	}
	if src.RSVPCounts != nil {
		dst.RSVPCounts = src.Clone().RSVPCounts
	}
}

func within(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}

// union appends the ids of the later sets that the first lacks, preserving
// first-seen order.
func union(sets ...[]models.ID) []models.ID {
	var out []models.ID
	seen := make(map[models.ID]struct{})
	for _, set := range sets {
		for _, id := range set {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
