package codec

import (
	"fmt"

	"github.com/valyala/fastjson"

	"studygroup-chat/internal/models"
)

var pageKeys = []string{"content", "messages", "items", "data"}

// DecodeHistory normalizes a REST history page for groupID. The page may be
// a bare array or an object wrapping one. Entries that cannot be decoded as
// messages are skipped and counted.
func (d *Decoder) DecodeHistory(raw []byte, groupID string) ([]models.Message, int, error) {
	p := d.parsers.Get()
	defer d.parsers.Put(p)
	a := d.arenas.Get()
	defer d.arenas.Put(a)

	root, err := p.ParseBytes(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	items, err := pageItems(root)
	if err != nil {
		return nil, 0, err
	}

	out := make([]models.Message, 0, len(items))
	skipped := 0
	for _, item := range items {
		if item.Type() != fastjson.TypeObject {
			skipped++
			continue
		}
		kind := kindOf(item, item)
		switch kind {
		case models.KindMessage, models.KindFile, models.KindPoll, models.KindSession:
		case "":
			kind = models.KindMessage
		default:
			skipped++
			continue
		}
		group := groupOf(item, groupID)
		normalizeTimes(item, a)
		msg, err := d.decodeMessage(kind, item, group)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, msg)
	}
	return out, skipped, nil
}

func pageItems(root *fastjson.Value) ([]*fastjson.Value, error) {
	switch root.Type() {
	case fastjson.TypeArray:
		return root.GetArray(), nil
	case fastjson.TypeObject:
		for _, key := range pageKeys {
			if v := root.Get(key); v != nil && v.Type() == fastjson.TypeArray {
				return v.GetArray(), nil
			}
		}
		return nil, fmt.Errorf("%w: history page without items", ErrMalformedFrame)
	case fastjson.TypeNull:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: unexpected history %s", ErrMalformedFrame, root.Type())
}
