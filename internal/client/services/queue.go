package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrijs2005/nutritrack/internal/client/client"
	"github.com/dmitrijs2005/nutritrack/internal/client/models"
	"github.com/dmitrijs2005/nutritrack/internal/client/repositories/pending"
	"github.com/dmitrijs2005/nutritrack/internal/client/repositories/userdata"
	"github.com/dmitrijs2005/nutritrack/internal/logging"
	"github.com/dmitrijs2005/nutritrack/internal/metrics"
)

var ErrMarkSynced = errors.New("delivered but not recorded as synced")

// Connectivity is the read side of the connectivity monitor.
type Connectivity interface {
	Online() bool
}

// DeliveryStatus is the outcome of one delivery attempt.
type DeliveryStatus string

const (
	// Delivered: the backend accepted the record and it is now synced.
	Delivered DeliveryStatus = "delivered"
	// Skipped: the record was already synced or another caller holds it.
	Skipped DeliveryStatus = "skipped"
	// Failed: transport or storage failure; the record stays pending.
	Failed DeliveryStatus = "failed"
	// Rejected: the backend answered non-2xx; the record stays pending.
	Rejected DeliveryStatus = "rejected"
)

// DeliveryResult describes one DeliverOne call.
type DeliveryResult struct {
	LocalID    int64          `json:"localId"`
	TempID     string         `json:"tempId"`
	Kind       models.Kind    `json:"kind"`
	Status     DeliveryStatus `json:"status"`
	ServerID   string         `json:"serverId,omitempty"`
	HTTPStatus int            `json:"httpStatus,omitempty"`
	Err        error          `json:"-"`
}

func (r DeliveryResult) OK() bool {
	return r.Status == Delivered
}

// SaveResult reports what Save did. Offline is true when no delivery was
// attempted; Delivery is set otherwise.
type SaveResult struct {
	Record   *models.PendingRecord
	Offline  bool
	Delivery *DeliveryResult
}

// ReplayReport collects the results of one replay of a kind.
type ReplayReport struct {
	Kind      models.Kind      `json:"kind"`
	Offline   bool             `json:"offline,omitempty"`
	Results   []DeliveryResult `json:"results"`
	Delivered int              `json:"delivered"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"`
}

func (r *ReplayReport) add(res DeliveryResult) {
	r.Results = append(r.Results, res)
	switch res.Status {
	case Delivered:
		r.Delivered++
	case Skipped:
		r.Skipped++
	default:
		r.Failed++
	}
}

// QueueStatus is a snapshot for the status command.
type QueueStatus struct {
	Online       bool
	Unsynced     map[models.Kind]int
	LastReplayAt time.Time
}

// WriteQueue stores writes locally first and delivers them to the backend
// when it is reachable.
type WriteQueue interface {
	// Save persists payload, then delivers it right away when online.
	// The local write always happens first; a failed delivery is not an
	// error, it is reported in SaveResult.Delivery.
	Save(ctx context.Context, kind models.Kind, payload json.RawMessage) (*SaveResult, error)
	SaveMeal(ctx context.Context, m models.Meal) (*SaveResult, error)
	SaveWorkout(ctx context.Context, w models.Workout) (*SaveResult, error)

	// DeliverOne sends a single record, unless it is synced or claimed.
	DeliverOne(ctx context.Context, rec *models.PendingRecord) DeliveryResult

	// ReplayPending delivers every unsynced record of kind, oldest first.
	// Concurrent calls for the same kind share one run. A cancelled run
	// returns the partial report together with the context error.
	ReplayPending(ctx context.Context, kind models.Kind) (*ReplayReport, error)

	// OnConnectivityRestored replays every kind and records the time.
	OnConnectivityRestored(ctx context.Context) (map[models.Kind]*ReplayReport, error)

	List(ctx context.Context, kind models.Kind) ([]*models.PendingRecord, error)
	PurgeSynced(ctx context.Context, kind models.Kind) (int64, error)
	Status(ctx context.Context) (*QueueStatus, error)

	// Recover returns records abandoned mid-delivery to pending.
	Recover(ctx context.Context) error
}

type writeQueue struct {
	records  pending.Repository
	userData userdata.Repository
	client   client.Client
	conn     Connectivity
	log      logging.Logger
	metrics  *metrics.Metrics
	group    singleflight.Group
	now      func() time.Time
}

// NewWriteQueue returns a queue over the given repositories. conn tells it
// whether to attempt delivery right after Save; m may be nil.
func NewWriteQueue(records pending.Repository, userData userdata.Repository, c client.Client,
	conn Connectivity, log logging.Logger, m *metrics.Metrics) WriteQueue {
	return &writeQueue{
		records:  records,
		userData: userData,
		client:   c,
		conn:     conn,
		log:      log.With("module", "queue"),
		metrics:  m,
		now:      time.Now,
	}
}

func (q *writeQueue) Save(ctx context.Context, kind models.Kind, payload json.RawMessage) (*SaveResult, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	if err := models.ValidatePayload(payload); err != nil {
		return nil, err
	}

	rec := &models.PendingRecord{TempID: models.NewTempID(), Kind: kind, Payload: payload}
	if _, err := q.records.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("saving error: %w", err)
	}
	q.refreshPending(ctx, kind)

	if !q.conn.Online() {
		q.log.Info(ctx, "saved offline", "kind", kind, "temp_id", rec.TempID)
		return &SaveResult{Record: rec, Offline: true}, nil
	}

	res := q.DeliverOne(ctx, rec)
	return &SaveResult{Record: rec, Delivery: &res}, nil
}

func (q *writeQueue) SaveMeal(ctx context.Context, m models.Meal) (*SaveResult, error) {
	if m.DateTime.IsZero() {
		m.DateTime = q.now().UTC()
	}
	p, err := models.Encode(m)
	if err != nil {
		return nil, err
	}
	return q.Save(ctx, models.KindMeals, p)
}

func (q *writeQueue) SaveWorkout(ctx context.Context, w models.Workout) (*SaveResult, error) {
	if w.DateTime.IsZero() {
		w.DateTime = q.now().UTC()
	}
	p, err := models.Encode(w)
	if err != nil {
		return nil, err
	}
	return q.Save(ctx, models.KindWorkouts, p)
}

func (q *writeQueue) DeliverOne(ctx context.Context, rec *models.PendingRecord) DeliveryResult {
	res := DeliveryResult{LocalID: rec.LocalID, TempID: rec.TempID, Kind: rec.Kind}

	if rec.Synced {
		res.Status = Skipped
		res.ServerID = rec.ServerID
		return res
	}

	claimed, err := q.records.Claim(ctx, rec.Kind, rec.LocalID)
	if err != nil {
		res.Status, res.Err = Failed, err
		q.observe(ctx, res)
		return res
	}
	if !claimed {
		res.Status = Skipped
		return res
	}

	// Bookkeeping after the claim must land even if ctx is cancelled, or the
	// record would sit in delivering until the next restart.
	bctx := context.WithoutCancel(ctx)

	body, err := rec.RequestBody()
	if err != nil {
		res.Status, res.Err = Failed, err
		q.release(bctx, rec, err)
		q.observe(ctx, res)
		return res
	}

	resp, err := q.client.Create(ctx, rec.Kind, body)
	if err != nil {
		var rej *client.RejectedError
		if errors.As(err, &rej) {
			res.Status, res.HTTPStatus = Rejected, rej.Status
		} else {
			res.Status = Failed
		}
		res.Err = err
		q.release(bctx, rec, err)
		q.observe(ctx, res)
		return res
	}

	res.Status, res.ServerID, res.HTTPStatus = Delivered, resp.ID, resp.Status
	if err := q.records.MarkSynced(bctx, rec.Kind, rec.LocalID, resp.ID); err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrMarkSynced, err)
		q.log.Error(ctx, "failed to mark record synced", "kind", rec.Kind, "local_id", rec.LocalID, "error", err)
	} else {
		rec.Synced = true
		rec.State = models.StateSynced
		rec.ServerID = resp.ID
	}
	q.observe(ctx, res)
	return res
}

func (q *writeQueue) release(ctx context.Context, rec *models.PendingRecord, cause error) {
	if err := q.records.Release(ctx, rec.Kind, rec.LocalID, cause.Error()); err != nil {
		q.log.Error(ctx, "failed to release record", "kind", rec.Kind, "local_id", rec.LocalID, "error", err)
		return
	}
	rec.State = models.StatePending
	rec.Attempts++
	rec.LastError = cause.Error()
}

func (q *writeQueue) observe(ctx context.Context, res DeliveryResult) {
	q.metrics.ObserveDelivery(string(res.Kind), string(res.Status))
	if res.Err != nil {
		q.log.Warn(ctx, "delivery failed", "kind", res.Kind, "temp_id", res.TempID,
			"status", res.Status, "error", res.Err)
		return
	}
	q.log.Debug(ctx, "delivered", "kind", res.Kind, "temp_id", res.TempID, "server_id", res.ServerID)
}

func (q *writeQueue) ReplayPending(ctx context.Context, kind models.Kind) (*ReplayReport, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	v, err, _ := q.group.Do(string(kind), func() (any, error) {
		return q.replay(ctx, kind)
	})
	// a cancelled replay still reports the records it got through
	report, _ := v.(*ReplayReport)
	return report, err
}

func (q *writeQueue) replay(ctx context.Context, kind models.Kind) (*ReplayReport, error) {
	report := &ReplayReport{Kind: kind, Results: make([]DeliveryResult, 0)}

	if !q.conn.Online() {
		report.Offline = true
		return report, nil
	}

	recs, err := q.records.GetAllUnsynced(ctx, kind)
	if err != nil {
		return nil, err
	}

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.add(q.DeliverOne(ctx, rec))
	}
	q.refreshPending(ctx, kind)

	q.log.Info(ctx, "replay finished", "kind", kind,
		"delivered", report.Delivered, "failed", report.Failed, "skipped", report.Skipped)
	return report, nil
}

func (q *writeQueue) OnConnectivityRestored(ctx context.Context) (map[models.Kind]*ReplayReport, error) {
	reports := make(map[models.Kind]*ReplayReport, len(models.Kinds))
	var errs []error

	for _, kind := range models.Kinds {
		r, err := q.ReplayPending(ctx, kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("replay %s: %w", kind, err))
		}
		if r != nil {
			reports[kind] = r
		}
	}

	stamp := q.now().UTC().Format(time.RFC3339Nano)
	if err := q.userData.Set(context.WithoutCancel(ctx), userdata.KeyLastReplayAt, []byte(stamp)); err != nil {
		errs = append(errs, err)
	}
	return reports, errors.Join(errs...)
}

func (q *writeQueue) List(ctx context.Context, kind models.Kind) ([]*models.PendingRecord, error) {
	return q.records.GetAll(ctx, kind)
}

func (q *writeQueue) PurgeSynced(ctx context.Context, kind models.Kind) (int64, error) {
	n, err := q.records.DeleteSynced(ctx, kind)
	if err != nil {
		return 0, err
	}
	q.log.Info(ctx, "purged synced records", "kind", kind, "count", n)
	return n, nil
}

func (q *writeQueue) Status(ctx context.Context) (*QueueStatus, error) {
	st := &QueueStatus{Online: q.conn.Online(), Unsynced: make(map[models.Kind]int, len(models.Kinds))}
	for _, kind := range models.Kinds {
		n, err := q.records.CountUnsynced(ctx, kind)
		if err != nil {
			return nil, err
		}
		st.Unsynced[kind] = n
	}

	raw, err := q.userData.Get(ctx, userdata.KeyLastReplayAt)
	switch {
	case errors.Is(err, userdata.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		if t, perr := time.Parse(time.RFC3339Nano, string(raw)); perr == nil {
			st.LastReplayAt = t
		}
	}
	return st, nil
}

func (q *writeQueue) Recover(ctx context.Context) error {
	n, err := q.records.ResetInFlight(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		q.log.Warn(ctx, "returned abandoned deliveries to pending", "count", n)
	}
	for _, kind := range models.Kinds {
		q.refreshPending(ctx, kind)
	}
	return nil
}

func (q *writeQueue) refreshPending(ctx context.Context, kind models.Kind) {
	if q.metrics == nil {
		return
	}
	n, err := q.records.CountUnsynced(ctx, kind)
	if err != nil {
		return
	}
	q.metrics.SetPending(string(kind), n)
}
