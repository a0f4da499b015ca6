package services_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbenek/sitegate/internal/models"
	"github.com/mbenek/sitegate/internal/services"
	pkgauth "github.com/mbenek/sitegate/pkg/auth"
	pkglogger "github.com/mbenek/sitegate/pkg/logger"
)

// memPasswordStore is an in-memory PasswordStore whose Consume applies the
// same usability guard the SQL store does, under a mutex.
type memPasswordStore struct {
	mu        sync.Mutex
	passwords map[string]*models.Password
}

func newMemPasswordStore() *memPasswordStore {
	return &memPasswordStore{passwords: make(map[string]*models.Password)}
}

func (m *memPasswordStore) Create(ctx context.Context, password *models.Password) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	password.ID = uuid.New().String()
	m.passwords[password.ID] = password
	return nil
}

func (m *memPasswordStore) GetByID(ctx context.Context, id string) (*models.Password, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	password, ok := m.passwords[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *password
	return &copied, nil
}

func (m *memPasswordStore) ActiveBySite(ctx context.Context, siteCode models.SiteCode) ([]*models.Password, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var active []*models.Password
	for _, password := range m.passwords {
		if password.SiteCode == siteCode && password.Usable(now) {
			copied := *password
			active = append(active, &copied)
		}
	}
	return active, nil
}

func (m *memPasswordStore) List(ctx context.Context) ([]*models.Password, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*models.Password, 0, len(m.passwords))
	for _, password := range m.passwords {
		copied := *password
		all = append(all, &copied)
	}
	return all, nil
}

func (m *memPasswordStore) Consume(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	password, ok := m.passwords[id]
	if !ok || !password.Usable(time.Now()) {
		return false, nil
	}
	password.UsedTimes++
	return true, nil
}

func (m *memPasswordStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.passwords[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.passwords, id)
	return nil
}

func (m *memPasswordStore) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var removed int64
	for id, password := range m.passwords {
		if !now.Before(password.ExpiresAt) {
			delete(m.passwords, id)
			removed++
		}
	}
	return removed, nil
}

type memAdminCredentialStore struct {
	mu   sync.Mutex
	cred models.AdminCredential
}

func (m *memAdminCredentialStore) Get(ctx context.Context) (*models.AdminCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := m.cred
	return &copied, nil
}

func (m *memAdminCredentialStore) UpdatePassword(ctx context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred.Hash = hash
	m.cred.LastChangedOn = time.Now()
	return nil
}

func newCredentialService(t *testing.T, passwords services.PasswordStore, admin services.AdminCredentialStore) *services.CredentialService {
	t.Helper()
	logger := testLogger()
	return services.NewCredentialService(passwords, admin, logger, pkglogger.NewAuditLogger(logger))
}

func adminStoreWithPassword(t *testing.T, plaintext string) *memAdminCredentialStore {
	t.Helper()
	hash, err := pkgauth.HashPassword(plaintext)
	require.NoError(t, err)
	return &memAdminCredentialStore{cred: models.AdminCredential{Hash: hash}}
}

func TestVerifyAdminPassword(t *testing.T) {
	svc := newCredentialService(t, newMemPasswordStore(), adminStoreWithPassword(t, "correct horse battery"))

	ok, err := svc.VerifyAdminPassword(context.Background(), "correct horse battery")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.VerifyAdminPassword(context.Background(), "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChangeAdminPassword(t *testing.T) {
	admin := adminStoreWithPassword(t, "old password value")
	svc := newCredentialService(t, newMemPasswordStore(), admin)

	err := svc.ChangeAdminPassword(context.Background(), "not the old one", "brand new password")
	assert.ErrorIs(t, err, models.ErrInvalidCredential)

	err = svc.ChangeAdminPassword(context.Background(), "old password value", "")
	assert.ErrorIs(t, err, models.ErrValidation)

	err = svc.ChangeAdminPassword(context.Background(), "old password value", "brand new password")
	require.NoError(t, err)

	ok, err := svc.VerifyAdminPassword(context.Background(), "brand new password")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGeneratePassword_Validation(t *testing.T) {
	svc := newCredentialService(t, newMemPasswordStore(), adminStoreWithPassword(t, "admin"))

	cases := []struct {
		name string
		req  services.GeneratePasswordRequest
	}{
		{"admin scope not shareable", services.GeneratePasswordRequest{SiteCode: models.SiteAdminPanel, Length: 12, ExpireDays: 1, UsableTimes: 1}},
		{"unknown site", services.GeneratePasswordRequest{SiteCode: "blog", Length: 12, ExpireDays: 1, UsableTimes: 1}},
		{"zero length", services.GeneratePasswordRequest{SiteCode: models.SiteGallery, Length: 0, ExpireDays: 1, UsableTimes: 1}},
		{"zero expiry", services.GeneratePasswordRequest{SiteCode: models.SiteGallery, Length: 12, ExpireDays: 0, UsableTimes: 1}},
		{"zero usable times", services.GeneratePasswordRequest{SiteCode: models.SiteGallery, Length: 12, ExpireDays: 1, UsableTimes: 0}},
		{"negative usable times", services.GeneratePasswordRequest{SiteCode: models.SiteGallery, Length: 12, ExpireDays: 1, UsableTimes: -2}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.GeneratePassword(context.Background(), tc.req)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestGeneratePassword_StoresHashNotPlaintext(t *testing.T) {
	store := newMemPasswordStore()
	svc := newCredentialService(t, store, adminStoreWithPassword(t, "admin"))

	generated, err := svc.GeneratePassword(context.Background(), services.GeneratePasswordRequest{
		SiteCode:    models.SiteGallery,
		Length:      16,
		ExpireDays:  7,
		UsableTimes: services.UsableTimesUnlimited,
		Charset:     pkgauth.CharsetFlags{Lower: true, Digits: true},
	})
	require.NoError(t, err)
	assert.Len(t, generated.Plaintext, 16)

	stored, err := store.GetByID(context.Background(), generated.ID)
	require.NoError(t, err)
	assert.NotContains(t, stored.Hash, generated.Plaintext)
	assert.NoError(t, pkgauth.ComparePassword(stored.Hash, generated.Plaintext))
	// Unlimited is stored as the zero cap.
	assert.Equal(t, 0, stored.UsableTimes)
	assert.NotEqual(t, generated.Plaintext, stored.Hint)
}

func TestFindAndConsume(t *testing.T) {
	store := newMemPasswordStore()
	svc := newCredentialService(t, store, adminStoreWithPassword(t, "admin"))

	generated, err := svc.GeneratePassword(context.Background(), services.GeneratePasswordRequest{
		SiteCode:    models.SiteGallery,
		Length:      12,
		ExpireDays:  1,
		UsableTimes: 2,
	})
	require.NoError(t, err)

	// Wrong site scope never matches.
	_, err = svc.FindAndConsume(context.Background(), models.SiteFileDrop, generated.Plaintext)
	assert.ErrorIs(t, err, models.ErrInvalidCredential)

	// Wrong candidate never matches.
	_, err = svc.FindAndConsume(context.Background(), models.SiteGallery, "nope")
	assert.ErrorIs(t, err, models.ErrInvalidCredential)

	matched, err := svc.FindAndConsume(context.Background(), models.SiteGallery, generated.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, generated.ID, matched.ID)
	assert.Equal(t, 1, matched.UsedTimes)

	_, err = svc.FindAndConsume(context.Background(), models.SiteGallery, generated.Plaintext)
	require.NoError(t, err)

	// Both uses spent.
	_, err = svc.FindAndConsume(context.Background(), models.SiteGallery, generated.Plaintext)
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}

func TestFindAndConsume_SingleUseRace(t *testing.T) {
	store := newMemPasswordStore()
	svc := newCredentialService(t, store, adminStoreWithPassword(t, "admin"))

	generated, err := svc.GeneratePassword(context.Background(), services.GeneratePasswordRequest{
		SiteCode:    models.SiteGallery,
		Length:      12,
		ExpireDays:  1,
		UsableTimes: 1,
	})
	require.NoError(t, err)

	const racers = 8
	results := make(chan error, racers)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < racers; i++ {
		go func() {
			start.Wait()
			_, err := svc.FindAndConsume(context.Background(), models.SiteGallery, generated.Plaintext)
			results <- err
		}()
	}
	start.Done()

	successes := 0
	for i := 0; i < racers; i++ {
		if err := <-results; err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, models.ErrInvalidCredential)
		}
	}
	assert.Equal(t, 1, successes, "exactly one redemption may spend the final use")
}

func TestConsumePassword_ByID(t *testing.T) {
	store := newMemPasswordStore()
	svc := newCredentialService(t, store, adminStoreWithPassword(t, "admin"))

	generated, err := svc.GeneratePassword(context.Background(), services.GeneratePasswordRequest{
		SiteCode:    models.SiteGallery,
		Length:      12,
		ExpireDays:  1,
		UsableTimes: 1,
	})
	require.NoError(t, err)

	_, err = svc.ConsumePassword(context.Background(), uuid.New().String(), generated.Plaintext)
	assert.ErrorIs(t, err, models.ErrInvalidCredential)

	_, err = svc.ConsumePassword(context.Background(), generated.ID, "wrong candidate")
	assert.ErrorIs(t, err, models.ErrInvalidCredential)

	matched, err := svc.ConsumePassword(context.Background(), generated.ID, generated.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, generated.ID, matched.ID)

	// Single use spent; correct candidate no longer redeems.
	_, err = svc.ConsumePassword(context.Background(), generated.ID, generated.Plaintext)
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}

func TestCleanupExpiredPasswords(t *testing.T) {
	store := newMemPasswordStore()
	svc := newCredentialService(t, store, adminStoreWithPassword(t, "admin"))

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Create(context.Background(), &models.Password{
			SiteCode:  models.SiteGallery,
			ExpiresAt: time.Now().Add(-time.Hour),
			Hash:      fmt.Sprintf("expired-%d", i),
		}))
	}
	require.NoError(t, store.Create(context.Background(), &models.Password{
		SiteCode:  models.SiteGallery,
		ExpiresAt: time.Now().Add(time.Hour),
		Hash:      "live",
	}))

	removed, err := svc.CleanupExpiredPasswords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	remaining, err := svc.ListPasswords(context.Background())
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
