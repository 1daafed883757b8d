package loadgen

import (
	"fmt"
	"math/rand"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/jaswdr/faker"

	"github.com/jittakal/poolstore/pkg/mutation"
)

// ContentTypeJSON is the data content type of generated envelopes.
const ContentTypeJSON = "application/json"

// Row matches the default partition schema.
type Row struct {
	ID        string    `db:"id"`
	UID       string    `db:"uid"`
	Kind      string    `db:"kind"`
	Amount    float64   `db:"amount"`
	Payload   string    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

var kinds = []string{"deposit", "withdrawal", "transfer", "refund", "fee"}

// EventBuilder generates CloudEvents envelopes carrying fake row inserts. It
// is not safe for concurrent use.
type EventBuilder struct {
	keyword string
	source  string
	faker   faker.Faker
	now     func() time.Time
}

// NewEventBuilder creates a builder. A non-zero seed makes the row contents
// reproducible; event IDs are always random.
func NewEventBuilder(keyword, source string, seed int64) *EventBuilder {
	f := faker.New()
	if seed != 0 {
		f = faker.NewWithSeed(rand.NewSource(seed))
	}
	return &EventBuilder{
		keyword: keyword,
		source:  source,
		faker:   f,
		now:     time.Now,
	}
}

// Row generates a fake row for uid.
func (b *EventBuilder) Row(uid string) Row {
	return Row{
		ID:        uuid.New().String(),
		UID:       uid,
		Kind:      kinds[b.faker.IntBetween(0, len(kinds)-1)],
		Amount:    float64(b.faker.IntBetween(100, 500000)) / 100,
		Payload:   b.faker.Lorem().Sentence(8),
		CreatedAt: b.now().UTC(),
	}
}

// Build wraps an insert of a fake row for uid into a mutation envelope.
func (b *EventBuilder) Build(uid string) (cloudevents.Event, error) {
	row := b.Row(uid)

	m, err := mutation.Insert("", row)
	if err != nil {
		return cloudevents.Event{}, err
	}
	m.Keyword = b.keyword
	m.UID = uid
	m.CreatedAt = row.CreatedAt

	event := cloudevents.NewEvent()
	event.SetSpecVersion(cloudevents.VersionV1)
	event.SetID(uuid.New().String())
	event.SetType(mutation.EventType)
	event.SetSource(b.source)
	event.SetSubject(b.keyword + "/" + uid)
	event.SetTime(row.CreatedAt)
	if err := event.SetData(ContentTypeJSON, m); err != nil {
		return cloudevents.Event{}, fmt.Errorf("set event data: %w", err)
	}
	return event, nil
}
