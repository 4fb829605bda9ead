package sql

import (
	"time"

	"mit.edu/dsg/rowdb/common"
)

// dateLayouts are tried in order. Values without a zone are UTC.
var dateLayouts = []string{
	common.DateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// dateParser turns date strings into epoch milliseconds. It remembers the layout that last succeeded, since the
// values of one column tend to share a layout. That cache makes it stateful, so each QueryContext owns its own
// dateParser and none is ever shared between goroutines.
type dateParser struct {
	last int
}

func (p *dateParser) parse(s string) (int64, error) {
	if t, err := time.ParseInLocation(dateLayouts[p.last], s, time.UTC); err == nil {
		return t.UnixMilli(), nil
	}
	var firstErr error
	for i, layout := range dateLayouts {
		if i == p.last {
			continue
		}
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			p.last = i
			return t.UnixMilli(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return 0, common.WrapError(common.ParseError, firstErr, "cannot convert '%s' to a date", s)
}

func (p *dateParser) reset() {
	p.last = 0
}
