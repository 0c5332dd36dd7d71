package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"strand/internal/audit"
	"strand/internal/platform/metrics"
	"strand/internal/revocation/models"
	"strand/internal/revocation/store"
	"strand/internal/strand/codec"
	dErrors "strand/pkg/domain-errors"
	"strand/pkg/platform/sentinel"
	"strand/pkg/testutil"
)

// forgetfulStore accepts inserts but never finds them, so every filter hit
// is a false positive.
type forgetfulStore struct{ *store.InMemoryStore }

func (forgetfulStore) Get(context.Context, string) (models.Record, error) {
	return models.Record{}, sentinel.ErrNotFound
}

type brokenStore struct{ *store.InMemoryStore }

func (brokenStore) Get(context.Context, string) (models.Record, error) {
	return models.Record{}, errors.Join(errors.New("connection reset"), sentinel.ErrUnavailable)
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []*models.Checkpoint
	err error
}

func (p *recordingPublisher) Publish(_ context.Context, cp *models.Checkpoint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, cp)
	return p.err
}

type RegistrySuite struct {
	suite.Suite
	ctx        context.Context
	now        time.Time
	store      *store.InMemoryStore
	auditStore *audit.InMemoryStore
	metrics    *metrics.Metrics
	registry   *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	s.store = store.NewInMemory()
	s.auditStore = audit.NewInMemoryStore()
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.registry = s.newRegistry(s.store)
}

func (s *RegistrySuite) newRegistry(st Store, opts ...Option) *Registry {
	base := []Option{
		WithAuditor(audit.NewPublisher(s.auditStore)),
		WithMetrics(s.metrics),
		WithNow(func() time.Time { return s.now }),
		WithFilterSizing(1000, 0.01),
	}
	return New(st, testutil.IssuerKey(), append(base, opts...)...)
}

func (s *RegistrySuite) TestRevokeThenIsRevoked() {
	rec, err := s.registry.Revoke(s.ctx, "strand_a", models.ReasonKeyCompromise)
	s.Require().NoError(err)
	s.Equal("strand_a", rec.CredentialID)
	s.Equal(s.now, rec.RevokedAt)

	revoked, err := s.registry.IsRevoked(s.ctx, "strand_a")
	s.Require().NoError(err)
	s.True(revoked)

	revoked, err = s.registry.IsRevoked(s.ctx, "strand_b")
	s.Require().NoError(err)
	s.False(revoked)
}

func (s *RegistrySuite) TestRevokeIsIdempotent() {
	first, err := s.registry.Revoke(s.ctx, "strand_a", models.ReasonKeyCompromise)
	s.Require().NoError(err)

	s.now = s.now.Add(time.Hour)
	second, err := s.registry.Revoke(s.ctx, "strand_a", models.ReasonSuperseded)
	s.Require().NoError(err)
	s.Equal(first, second)

	events, err := s.auditStore.ListByCredential(s.ctx, "strand_a")
	s.Require().NoError(err)
	s.Len(events, 1)
	s.InDelta(1, promtestutil.ToFloat64(s.metrics.Revocations.WithLabelValues(models.ReasonKeyCompromise)), 0)
}

func (s *RegistrySuite) TestRevokeDefaultsReasonAndRequiresID() {
	rec, err := s.registry.Revoke(s.ctx, "strand_a", "")
	s.Require().NoError(err)
	s.Equal(models.ReasonUnspecified, rec.Reason)

	_, err = s.registry.Revoke(s.ctx, "", "x")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *RegistrySuite) TestRebuildLoadsExistingRevocations() {
	_, _, err := s.store.Insert(s.ctx, models.Record{CredentialID: "strand_old", Reason: "x", RevokedAt: s.now})
	s.Require().NoError(err)

	revoked, err := s.registry.IsRevoked(s.ctx, "strand_old")
	s.Require().NoError(err)
	s.False(revoked, "filter has not seen the store yet")

	s.Require().NoError(s.registry.Rebuild(s.ctx))
	revoked, err = s.registry.IsRevoked(s.ctx, "strand_old")
	s.Require().NoError(err)
	s.True(revoked)
	s.Equal(uint(1), s.registry.FilterEntries())
	s.InDelta(1, promtestutil.ToFloat64(s.metrics.FilterRebuilds), 0)
}

func (s *RegistrySuite) TestMonotonicThroughConcurrentRebuilds() {
	const revokers, perRevoker = 8, 50
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	var rebuilders sync.WaitGroup
	for range 3 {
		rebuilders.Go(func() {
			for ctx.Err() == nil {
				_ = s.registry.Rebuild(ctx)
			}
		})
	}

	var violations sync.Map
	var wg sync.WaitGroup
	for r := range revokers {
		wg.Go(func() {
			for i := range perRevoker {
				id := "strand_" + strconv.Itoa(r) + "_" + strconv.Itoa(i)
				if _, err := s.registry.Revoke(s.ctx, id, "test"); err != nil {
					violations.Store(id, err)
					continue
				}
				for range 3 {
					if revoked, err := s.registry.IsRevoked(s.ctx, id); err != nil || !revoked {
						violations.Store(id, err)
					}
				}
			}
		})
	}
	wg.Wait()
	cancel()
	rebuilders.Wait()

	count := 0
	violations.Range(func(key, _ any) bool {
		count++
		return true
	})
	s.Zero(count, "revoked ids reported as live")

	for r := range revokers {
		for i := range perRevoker {
			revoked, err := s.registry.IsRevoked(s.ctx, "strand_"+strconv.Itoa(r)+"_"+strconv.Itoa(i))
			s.Require().NoError(err)
			s.True(revoked)
		}
	}
}

func (s *RegistrySuite) TestCancelledRebuildKeepsOldFilter() {
	_, err := s.registry.Revoke(s.ctx, "strand_a", "x")
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	s.ErrorIs(s.registry.Rebuild(ctx), context.Canceled)

	revoked, err := s.registry.IsRevoked(s.ctx, "strand_a")
	s.Require().NoError(err)
	s.True(revoked)
}

func (s *RegistrySuite) TestSaturationRequestsRebuild() {
	r := s.newRegistry(store.NewInMemory(), WithFilterSizing(2, 0.01))
	for i := range 3 {
		_, err := r.Revoke(s.ctx, "strand_"+strconv.Itoa(i), "x")
		s.Require().NoError(err)
	}
	select {
	case <-r.RebuildRequests():
	default:
		s.Fail("expected a rebuild request")
	}
}

func (s *RegistrySuite) TestRepeatRevokeDoesNotGrowFilter() {
	r := s.newRegistry(store.NewInMemory(), WithFilterSizing(2, 0.01))
	for range 5 {
		_, err := r.Revoke(s.ctx, "strand_a", "x")
		s.Require().NoError(err)
	}
	s.Equal(uint(1), r.FilterEntries())
	select {
	case <-r.RebuildRequests():
		s.Fail("repeat revokes must not saturate the filter")
	default:
	}
}

func (s *RegistrySuite) TestRepeatRevokeRepairsMissingFilterEntry() {
	_, inserted, err := s.store.Insert(s.ctx, models.Record{CredentialID: "strand_a", Reason: "x", RevokedAt: s.now})
	s.Require().NoError(err)
	s.Require().True(inserted)
	s.Equal(uint(0), s.registry.FilterEntries())

	_, err = s.registry.Revoke(s.ctx, "strand_a", "x")
	s.Require().NoError(err)
	s.Equal(uint(1), s.registry.FilterEntries())
}

func (s *RegistrySuite) TestFalsePositiveIsConfirmedAgainstStore() {
	r := s.newRegistry(forgetfulStore{store.NewInMemory()})
	_, err := r.Revoke(s.ctx, "strand_a", "x")
	s.Require().NoError(err)

	revoked, err := r.IsRevoked(s.ctx, "strand_a")
	s.Require().NoError(err)
	s.False(revoked)
	s.InDelta(1, promtestutil.ToFloat64(s.metrics.FilterFalsePositives), 0)
}

func (s *RegistrySuite) TestStoreFailureOnConfirmIsReturned() {
	r := s.newRegistry(brokenStore{store.NewInMemory()})
	_, err := r.Revoke(s.ctx, "strand_a", "x")
	s.Require().NoError(err)

	_, err = r.IsRevoked(s.ctx, "strand_a")
	s.ErrorIs(err, sentinel.ErrUnavailable)
}

func (s *RegistrySuite) TestCheckpointIsSignedAndPublished() {
	pub := &recordingPublisher{}
	r := s.newRegistry(s.store, WithPublisher(pub))
	for _, id := range []string{"strand_c", "strand_a", "strand_b"} {
		_, err := r.Revoke(s.ctx, id, "x")
		s.Require().NoError(err)
	}

	cp, err := r.Checkpoint(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(3), cp.Count)
	s.Equal(s.now, cp.Timestamp)
	s.Equal(codec.RevocationDigest([]string{"strand_a", "strand_b", "strand_c"}), cp.Digest)

	issuer := testutil.IssuerKey().Public().(ed25519.PublicKey)
	ok, err := VerifyCheckpoint(cp, issuer)
	s.Require().NoError(err)
	s.True(ok)

	tampered := *cp
	tampered.Count = 2
	ok, err = VerifyCheckpoint(&tampered, issuer)
	s.Require().NoError(err)
	s.False(ok)

	s.Require().Len(pub.got, 1)
	s.Equal(cp.Digest, pub.got[0].Digest)
}

func (s *RegistrySuite) TestCheckpointSurvivesPublishFailure() {
	r := s.newRegistry(s.store, WithPublisher(&recordingPublisher{err: errors.New("broker down")}))
	cp, err := r.Checkpoint(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(0), cp.Count)
}
