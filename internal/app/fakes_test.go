package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
)

// fakeCertRepo backs both the ledger and issuance services in tests.
type fakeCertRepo struct {
	mu    sync.Mutex
	certs map[string]domain.Certificate
}

func newFakeCertRepo(certs ...domain.Certificate) *fakeCertRepo {
	repo := &fakeCertRepo{certs: make(map[string]domain.Certificate)}
	for _, c := range certs {
		repo.certs[c.ID] = c
	}
	return repo
}

func (r *fakeCertRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *fakeCertRepo) GetCertificate(_ context.Context, id string) (domain.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cert, ok := r.certs[id]
	if !ok {
		return domain.Certificate{}, domain.ErrCertificateNotFound
	}
	return cert, nil
}

func (r *fakeCertRepo) CreateCertificate(_ context.Context, cert domain.Certificate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.certs[cert.ID] = cert
	return nil
}

func (r *fakeCertRepo) UpdateCertificateStatus(_ context.Context, id string, status domain.CertificateStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cert, ok := r.certs[id]
	if !ok {
		return domain.ErrCertificateNotFound
	}
	cert.Status = status
	r.certs[id] = cert
	return nil
}

func (r *fakeCertRepo) ApplyAnnualReset(_ context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cert, ok := r.certs[id]
	if !ok || cert.Status != domain.CertificateStatusActive || cert.ResetAt.After(now) {
		return nil
	}
	cert.AllowanceUsed = 0
	for !cert.ResetAt.After(now) {
		cert.ResetAt = cert.ResetAt.AddDate(1, 0, 0)
	}
	r.certs[id] = cert
	return nil
}

func (r *fakeCertRepo) ConsumeAllowance(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cert, ok := r.certs[id]
	if !ok || cert.Status != domain.CertificateStatusActive || cert.AllowanceUsed >= cert.AnnualAllowance {
		return false, nil
	}
	cert.AllowanceUsed++
	r.certs[id] = cert
	return true, nil
}

func (r *fakeCertRepo) ReleaseAllowance(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cert, ok := r.certs[id]
	if !ok || cert.AllowanceUsed <= 0 {
		return false, nil
	}
	cert.AllowanceUsed--
	r.certs[id] = cert
	return true, nil
}

func (r *fakeCertRepo) ExpireCertificates(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, cert := range r.certs {
		if cert.Status == domain.CertificateStatusActive && !cert.ValidUntil.After(now) {
			cert.Status = domain.CertificateStatusExpired
			r.certs[id] = cert
			n++
		}
	}
	return n, nil
}

// fakeReservationRepo keeps requests and reservations in memory and emulates
// the overlap constraint on insert.
type fakeReservationRepo struct {
	mu           sync.Mutex
	units        map[string]domain.SupplyUnit
	requests     map[string]domain.ReservationRequest
	reservations map[string]domain.ConfirmedReservation
}

func newFakeReservationRepo(units ...domain.SupplyUnit) *fakeReservationRepo {
	repo := &fakeReservationRepo{
		units:        make(map[string]domain.SupplyUnit),
		requests:     make(map[string]domain.ReservationRequest),
		reservations: make(map[string]domain.ConfirmedReservation),
	}
	for _, u := range units {
		repo.units[u.ID] = u
	}
	return repo
}

func (r *fakeReservationRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *fakeReservationRepo) GetSupplyUnit(_ context.Context, id string) (domain.SupplyUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	unit, ok := r.units[id]
	if !ok {
		return domain.SupplyUnit{}, domain.ErrSupplyUnitNotFound
	}
	return unit, nil
}

func (r *fakeReservationRepo) GetRequestForUpdate(_ context.Context, id string) (domain.ReservationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return domain.ReservationRequest{}, domain.ErrRequestNotFound
	}
	return req, nil
}

func (r *fakeReservationRepo) CreateRequest(_ context.Context, req domain.ReservationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[req.ID] = req
	return nil
}

func (r *fakeReservationRepo) UpdateRequest(_ context.Context, req domain.ReservationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[req.ID]; !ok {
		return domain.ErrRequestNotFound
	}
	r.requests[req.ID] = req
	return nil
}

func (r *fakeReservationRepo) ListRequestsByUser(_ context.Context, userID string) ([]domain.ReservationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ReservationRequest
	for _, req := range r.requests {
		if req.UserID == userID {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeReservationRepo) CountRequestsByStatus(_ context.Context) (map[domain.RequestStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[domain.RequestStatus]int)
	for _, req := range r.requests {
		counts[req.Status]++
	}
	return counts, nil
}

func (r *fakeReservationRepo) FindConflicts(_ context.Context, supplyUnitID string, rng domain.DateRange) ([]domain.ConfirmedReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conflictsLocked(supplyUnitID, rng), nil
}

func (r *fakeReservationRepo) conflictsLocked(supplyUnitID string, rng domain.DateRange) []domain.ConfirmedReservation {
	var out []domain.ConfirmedReservation
	for _, res := range r.reservations {
		if res.SupplyUnitID == supplyUnitID && res.Status != domain.ReservationStatusCancelled && res.Range.Overlaps(rng) {
			out = append(out, res)
		}
	}
	return out
}

func (r *fakeReservationRepo) CreateReservation(_ context.Context, res domain.ConfirmedReservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.conflictsLocked(res.SupplyUnitID, res.Range)) > 0 {
		return domain.ErrSupplyConflict
	}
	for _, existing := range r.reservations {
		if existing.RequestID == res.RequestID {
			return domain.ErrInvalidRequestState
		}
	}
	r.reservations[res.ID] = res
	return nil
}

func (r *fakeReservationRepo) GetReservationByRequestID(_ context.Context, requestID string) (*domain.ConfirmedReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.reservations {
		if res.RequestID == requestID {
			out := res
			return &out, nil
		}
	}
	return nil, nil
}

func (r *fakeReservationRepo) GetReservationForUpdate(_ context.Context, id string) (domain.ConfirmedReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return domain.ConfirmedReservation{}, domain.ErrReservationNotFound
	}
	return res, nil
}

func (r *fakeReservationRepo) UpdateReservationStatus(_ context.Context, id string, status domain.ReservationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return domain.ErrReservationNotFound
	}
	res.Status = status
	r.reservations[id] = res
	return nil
}

func (r *fakeReservationRepo) ExpireOffers(_ context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, req := range r.requests {
		if req.Status == domain.RequestStatusOffered && req.Offer != nil && !req.Offer.ExpiresAt.After(now) {
			req.Status = domain.RequestStatusExpired
			r.requests[id] = req
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// fakeCapacityRepo serves the capacity service with configurable aggregates.
type fakeCapacityRepo struct {
	mu          sync.Mutex
	totalUnits  int
	activeUnits int
	totalWeeks  int
	counts      map[domain.Tier]int
	flags       map[domain.Tier]bool
	waitlist    []domain.WaitlistEntry
	snapshots   []domain.CapacitySnapshot
}

func newFakeCapacityRepo(totalWeeks int, counts map[domain.Tier]int) *fakeCapacityRepo {
	if counts == nil {
		counts = map[domain.Tier]int{}
	}
	return &fakeCapacityRepo{
		totalUnits:  1,
		activeUnits: 1,
		totalWeeks:  totalWeeks,
		counts:      counts,
		flags:       map[domain.Tier]bool{},
	}
}

func (r *fakeCapacityRepo) SupplyStats(_ context.Context) (int, int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalUnits, r.activeUnits, r.totalWeeks, nil
}

func (r *fakeCapacityRepo) CountActiveCertificatesByTier(_ context.Context) (map[domain.Tier]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[domain.Tier]int, len(r.counts))
	for tier, n := range r.counts {
		out[tier] = n
	}
	return out, nil
}

func (r *fakeCapacityRepo) StopSaleFlags(_ context.Context) (map[domain.Tier]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[domain.Tier]bool, len(r.flags))
	for tier, stopped := range r.flags {
		out[tier] = stopped
	}
	return out, nil
}

func (r *fakeCapacityRepo) SetStopSaleFlag(_ context.Context, tier domain.Tier, stopped bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags[tier] = stopped
	return nil
}

func (r *fakeCapacityRepo) WaitlistCount(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waitlist), nil
}

func (r *fakeCapacityRepo) AddWaitlistEntry(_ context.Context, entry domain.WaitlistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waitlist = append(r.waitlist, entry)
	return nil
}

func (r *fakeCapacityRepo) InsertSnapshot(_ context.Context, snapshot domain.CapacitySnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snapshot)
	return nil
}

func (r *fakeCapacityRepo) LatestSnapshot(_ context.Context) (domain.CapacitySnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return domain.CapacitySnapshot{}, domain.ErrSnapshotNotFound
	}
	return r.snapshots[len(r.snapshots)-1], nil
}

// fakeEvidenceRepo chains events in memory exactly like the real repository.
type fakeEvidenceRepo struct {
	mu     sync.Mutex
	events []domain.EvidenceEvent
}

func (r *fakeEvidenceRepo) AppendEvent(_ context.Context, event domain.EvidenceEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		prev := r.events[i]
		if prev.EntityType == event.EntityType && prev.EntityID == event.EntityID {
			event.PrevHash = prev.PayloadHash
			break
		}
	}
	r.events = append(r.events, event)
	return nil
}

func (r *fakeEvidenceRepo) ListByEntity(_ context.Context, entityType, entityID string) ([]domain.EvidenceEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.EvidenceEvent
	for _, ev := range r.events {
		if ev.EntityType == entityType && ev.EntityID == entityID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (r *fakeEvidenceRepo) eventTypes(entityType, entityID string) []string {
	events, _ := r.ListByEntity(context.Background(), entityType, entityID)
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.EventType)
	}
	return out
}

// fakeWebhookRepo emulates delivery dedup and the one-shot group completion
// claim.
type fakeWebhookRepo struct {
	mu      sync.Mutex
	records map[string]domain.WebhookRecord
	groups  map[string]domain.PaymentGroup
	members map[string][]domain.PaymentGroupMember
}

func newFakeWebhookRepo() *fakeWebhookRepo {
	return &fakeWebhookRepo{
		records: make(map[string]domain.WebhookRecord),
		groups:  make(map[string]domain.PaymentGroup),
		members: make(map[string][]domain.PaymentGroupMember),
	}
}

func webhookKey(source, eventID string) string { return source + "/" + eventID }

func (r *fakeWebhookRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *fakeWebhookRepo) InsertWebhook(_ context.Context, rec domain.WebhookRecord) (bool, domain.WebhookRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := webhookKey(rec.Source, rec.ProviderEventID)
	if existing, ok := r.records[key]; ok {
		return false, existing, nil
	}
	r.records[key] = rec
	return true, rec, nil
}

func (r *fakeWebhookRepo) markStatus(id string, status domain.WebhookStatus, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, rec := range r.records {
		if rec.ID == id {
			rec.Status = status
			rec.Error = message
			r.records[key] = rec
			return nil
		}
	}
	return domain.ErrWebhookNotFound
}

func (r *fakeWebhookRepo) MarkProcessed(_ context.Context, id string) error {
	return r.markStatus(id, domain.WebhookStatusProcessed, "")
}

func (r *fakeWebhookRepo) MarkFailed(_ context.Context, id, message string) error {
	return r.markStatus(id, domain.WebhookStatusFailed, message)
}

func (r *fakeWebhookRepo) CreatePaymentGroup(_ context.Context, group domain.PaymentGroup, members []domain.PaymentGroupMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[group.ID]; ok {
		return domain.ErrDuplicateDelivery
	}
	r.groups[group.ID] = group
	r.members[group.ID] = append([]domain.PaymentGroupMember(nil), members...)
	return nil
}

func (r *fakeWebhookRepo) UpdateGroupMemberStatus(_ context.Context, groupID string, sequence int, status domain.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.members[groupID]
	if !ok {
		return domain.ErrWebhookNotFound
	}
	for i, m := range members {
		if m.Sequence == sequence {
			members[i].Status = status
			return nil
		}
	}
	return domain.ErrWebhookNotFound
}

func (r *fakeWebhookRepo) ClaimGroupCompletion(_ context.Context, groupID string) (*domain.PaymentGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	group, ok := r.groups[groupID]
	if !ok || group.CompletedAt != nil {
		return nil, nil
	}
	for _, m := range r.members[groupID] {
		if m.Status != domain.PaymentStatusPaid {
			return nil, nil
		}
	}
	now := time.Now()
	group.CompletedAt = &now
	r.groups[groupID] = group
	out := group
	return &out, nil
}

// fakeConsent returns a fixed consent verdict.
type fakeConsent struct {
	valid   bool
	version string
}

func (c fakeConsent) ValidateConsent(context.Context, string, string) (ConsentResult, error) {
	return ConsentResult{Valid: c.valid, Version: c.version}, nil
}

// captureNotifier records delivered templates per user.
type captureNotifier struct {
	mu        sync.Mutex
	delivered []string
}

func (n *captureNotifier) Notify(_ context.Context, userID, template string, _ map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delivered = append(n.delivered, userID+":"+template)
}

// captureCommission counts issuance signals.
type captureCommission struct {
	mu    sync.Mutex
	count int
}

func (c *captureCommission) CertificateIssued(context.Context, domain.Certificate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
}

// tamper rewrites a stored payload without updating its hash, for chain
// verification tests.
func (r *fakeEvidenceRepo) tamper(index int, key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[index].Payload[key] = value
}
