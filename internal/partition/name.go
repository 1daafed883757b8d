package partition

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the day-granularity date embedded in partition names.
const DateLayout = "20060102"

// Partition identifies one time shard of a uid.
type Partition struct {
	Keyword string
	UID     string
	Created time.Time
}

// Name returns "<keyword>-<uid>-<yyyymmdd>".
func (p Partition) Name() string {
	return p.Keyword + "-" + p.UID + "-" + p.Created.Format(DateLayout)
}

// Parse splits a partition name. The keyword is the leading token, the date
// the trailing one, and the uid everything in between, so uids may contain
// dashes while keywords may not.
func Parse(name string, loc *time.Location) (Partition, error) {
	first := strings.IndexByte(name, '-')
	last := strings.LastIndexByte(name, '-')
	if first <= 0 || last == first || last == len(name)-1 {
		return Partition{}, fmt.Errorf("malformed partition name %q", name)
	}

	if loc == nil {
		loc = time.UTC
	}
	created, err := time.ParseInLocation(DateLayout, name[last+1:], loc)
	if err != nil {
		return Partition{}, fmt.Errorf("malformed partition date in %q: %w", name, err)
	}

	return Partition{
		Keyword: name[:first],
		UID:     name[first+1 : last],
		Created: created,
	}, nil
}
