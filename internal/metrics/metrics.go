package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/smroczek2/camp-os-sub002/pkg/telemetry"
)

var (
	// Registration counters
	RegistrationsCreated   *telemetry.Counter
	RegistrationsConfirmed *telemetry.Counter
	RegistrationsCanceled  *telemetry.Counter
	RegistrationsRefunded  *telemetry.Counter
	RegistrationsRejected  *telemetry.Counter

	// Waitlist counters
	WaitlistJoins       *telemetry.Counter
	WaitlistOffers      *telemetry.Counter
	WaitlistConversions *telemetry.Counter
	WaitlistExpirations *telemetry.Counter
	WaitlistLeaves      *telemetry.Counter

	// Concurrency counters
	VersionConflicts *telemetry.Counter

	// Histograms
	OfferResponseTime *telemetry.Histogram

	// Gauges
	WaitlistDepth *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all enrollment metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	RegistrationsCreated, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "enrollment_registrations_created_total",
		Description: "Total number of registrations created",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	RegistrationsConfirmed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "enrollment_registrations_confirmed_total",
		Description: "Total number of registrations confirmed",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	RegistrationsCanceled, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "enrollment_registrations_canceled_total",
		Description: "Total number of registrations canceled",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	RegistrationsRefunded, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "enrollment_registrations_refunded_total",
		Description: "Total number of registrations refunded",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	RegistrationsRejected, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "enrollment_registrations_rejected_total",
		Description: "Total number of confirmations rejected for lack of seats",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WaitlistJoins, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "enrollment_waitlist_joins_total",
		Description: "Total number of waitlist joins",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WaitlistOffers, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "enrollment_waitlist_offers_total",
		Description: "Total number of offers extended to waitlisted children",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WaitlistConversions, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "enrollment_waitlist_conversions_total",
		Description: "Total number of offers accepted and converted",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WaitlistExpirations, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "enrollment_waitlist_expirations_total",
		Description: "Total number of offers that expired unaccepted",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WaitlistLeaves, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "enrollment_waitlist_leaves_total",
		Description: "Total number of voluntary waitlist withdrawals",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	VersionConflicts, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "enrollment_version_conflicts_total",
		Description: "Total number of optimistic concurrency conflicts",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	OfferResponseTime, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "enrollment_offer_response_seconds",
		Description: "Time from offer to acceptance",
		Unit:        "s",
	}, []float64{60, 600, 3600, 14400, 43200, 86400, 172800}) // 1min to 48h
	if err != nil {
		return err
	}

	WaitlistDepth, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "enrollment_waitlist_depth",
		Description: "Current number of active waitlist entries",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	return nil
}

// RecordRegistrationCreated records a registration creation
func RecordRegistrationCreated(ctx context.Context, sessionID string) {
	if RegistrationsCreated != nil {
		RegistrationsCreated.Inc(ctx, attribute.String("session_id", sessionID))
	}
}

// RecordConfirmation records a confirmed registration
func RecordConfirmation(ctx context.Context, sessionID string) {
	if RegistrationsConfirmed != nil {
		RegistrationsConfirmed.Inc(ctx, attribute.String("session_id", sessionID))
	}
}

// RecordRejection records a confirmation rejected for lack of seats
func RecordRejection(ctx context.Context, sessionID string) {
	if RegistrationsRejected != nil {
		RegistrationsRejected.Inc(ctx, attribute.String("session_id", sessionID))
	}
}

// RecordCancellation records a canceled registration
func RecordCancellation(ctx context.Context, sessionID string) {
	if RegistrationsCanceled != nil {
		RegistrationsCanceled.Inc(ctx, attribute.String("session_id", sessionID))
	}
}

// RecordRefund records a refunded registration
func RecordRefund(ctx context.Context, sessionID string) {
	if RegistrationsRefunded != nil {
		RegistrationsRefunded.Inc(ctx, attribute.String("session_id", sessionID))
	}
}

// RecordWaitlistJoin records a waitlist join
func RecordWaitlistJoin(ctx context.Context, sessionID string) {
	if WaitlistJoins != nil {
		WaitlistJoins.Inc(ctx, attribute.String("session_id", sessionID))
	}
	if WaitlistDepth != nil {
		WaitlistDepth.Inc(ctx)
	}
}

// RecordOffer records an offer extended by promotion
func RecordOffer(ctx context.Context, sessionID string) {
	if WaitlistOffers != nil {
		WaitlistOffers.Inc(ctx, attribute.String("session_id", sessionID))
	}
}

// RecordConversion records an accepted offer and its response time
func RecordConversion(ctx context.Context, sessionID string, responseSeconds float64) {
	if WaitlistConversions != nil {
		WaitlistConversions.Inc(ctx, attribute.String("session_id", sessionID))
	}
	if OfferResponseTime != nil {
		OfferResponseTime.Record(ctx, responseSeconds, attribute.String("session_id", sessionID))
	}
	if WaitlistDepth != nil {
		WaitlistDepth.Dec(ctx)
	}
}

// RecordExpiration records offers that expired unaccepted
func RecordExpiration(ctx context.Context, count int64) {
	if WaitlistExpirations != nil {
		WaitlistExpirations.Add(ctx, count)
	}
	if WaitlistDepth != nil {
		WaitlistDepth.Add(ctx, -count)
	}
}

// RecordWaitlistLeave records a voluntary withdrawal
func RecordWaitlistLeave(ctx context.Context, sessionID string) {
	if WaitlistLeaves != nil {
		WaitlistLeaves.Inc(ctx, attribute.String("session_id", sessionID))
	}
	if WaitlistDepth != nil {
		WaitlistDepth.Dec(ctx)
	}
}

// RecordVersionConflict records an optimistic concurrency conflict
func RecordVersionConflict(ctx context.Context, operation string) {
	if VersionConflicts != nil {
		VersionConflicts.Inc(ctx, attribute.String("operation", operation))
	}
}
