// Package events publishes kit import events to NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"lambari-service/internal/importer"
	"lambari-service/internal/models"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"
)

const (
	StreamKitImports = "KIT_IMPORTS"

	SubjectImportCompleted = "kit_import.completed"
	SubjectImportFailed    = "kit_import.failed"
	SubjectBrandCreated    = "kit_import.brand.created"
	SubjectCategoryCreated = "kit_import.category.created"

	publishTimeout = 10 * time.Second
)

// ImportEvent is published once per finished commit.
type ImportEvent struct {
	EventType          string    `json:"eventType"`
	Timestamp          time.Time `json:"timestamp"`
	ImportID           string    `json:"importId"`
	TotalRows          int       `json:"totalRows"`
	SuccessCount       int       `json:"successCount"`
	CommitFailureCount int       `json:"commitFailureCount"`
	ErrorCount         int       `json:"errorCount"`
	CreatedBrands      int       `json:"createdBrands"`
	CreatedCategories  int       `json:"createdCategories"`
	ProductIDs         []string  `json:"productIds,omitempty"`
	Error              string    `json:"error,omitempty"`
}

// EntityEvent is published for every brand or category an import creates.
type EntityEvent struct {
	EventType string    `json:"eventType"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
}

// streamPublisher is the slice of jetstream.JetStream the publisher needs.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher turns pipeline events into JetStream messages. It implements
// importer.Observer; publishing is asynchronous so imports never wait on NATS.
type Publisher struct {
	nc     *nats.Conn
	js     streamPublisher
	logger *logrus.Entry
	now    func() time.Time
	wg     sync.WaitGroup
}

var _ importer.Observer = (*Publisher)(nil)

// NewPublisher connects to NATS and makes sure the import stream exists.
func NewPublisher(natsURL string, logger *logrus.Logger) (*Publisher, error) {
	entry := logger.WithField("component", "kit-import-events")

	nc, err := nats.Connect(natsURL,
		nats.Name("lambari-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			entry.Infof("Reconnected to NATS at %s", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				entry.WithError(err).Warn("Disconnected from NATS")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamKitImports,
		Subjects:  []string{"kit_import.>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
		Replicas:  1,
	})
	if err != nil {
		entry.WithError(err).Warn("Failed to ensure kit import stream (may already exist)")
	}

	return &Publisher{nc: nc, js: js, logger: entry, now: time.Now}, nil
}

// Close waits for in-flight publishes and closes the NATS connection.
func (p *Publisher) Close() {
	p.wg.Wait()
	if p.nc != nil {
		p.nc.Close()
	}
}

func (p *Publisher) RowValidated(context.Context, models.ValidationResult) {}

func (p *Publisher) RowCommitted(context.Context, models.RowOutcome) {}

func (p *Publisher) EntityCreated(_ context.Context, kind, id, name string) {
	subject := SubjectBrandCreated
	if kind == importer.EntityCategory {
		subject = SubjectCategoryCreated
	}
	p.publishAsync(subject, EntityEvent{
		EventType: subject,
		Timestamp: p.now().UTC(),
		Kind:      kind,
		ID:        id,
		Name:      name,
	})
}

func (p *Publisher) ImportCompleted(_ context.Context, report *models.BulkImportReport, err error) {
	if report == nil {
		return
	}
	subject := SubjectImportCompleted
	event := ImportEvent{
		Timestamp:          p.now().UTC(),
		ImportID:           report.ID,
		TotalRows:          report.TotalRows,
		SuccessCount:       report.SuccessCount,
		CommitFailureCount: report.CommitFailureCount,
		ErrorCount:         report.ErrorCount,
		CreatedBrands:      report.CreatedBrands,
		CreatedCategories:  report.CreatedCategories,
		ProductIDs:         report.CreatedProductIDs,
	}
	if err != nil {
		subject = SubjectImportFailed
		event.Error = err.Error()
	}
	event.EventType = subject
	p.publishAsync(subject, event)
}

func (p *Publisher) publishAsync(subject string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(err).WithField("subject", subject).Error("Failed to marshal event")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if _, err := p.js.Publish(ctx, subject, data); err != nil {
			p.logger.WithError(err).WithField("subject", subject).Warn("Failed to publish event")
			return
		}
		p.logger.WithField("subject", subject).Debug("Published event")
	}()
}
