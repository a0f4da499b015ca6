package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mbenek/sitegate/internal/models"
)

func TestSiteCodeClassification(t *testing.T) {
	assert.True(t, models.ValidSiteCode(models.SiteAdminPanel))
	assert.True(t, models.ValidSiteCode(models.SiteClientApp))
	assert.True(t, models.ValidSiteCode(models.SiteGallery))
	assert.True(t, models.ValidSiteCode(models.SiteFileDrop))
	assert.False(t, models.ValidSiteCode("blog"))
	assert.False(t, models.ValidSiteCode(""))

	assert.True(t, models.SiteAdminPanel.IsAdministrator())
	assert.True(t, models.SiteClientApp.IsAdministrator())
	assert.False(t, models.SiteGallery.IsAdministrator())

	assert.True(t, models.ShareableSiteCode(models.SiteGallery))
	assert.True(t, models.ShareableSiteCode(models.SiteFileDrop))
	assert.False(t, models.ShareableSiteCode(models.SiteAdminPanel))
	assert.False(t, models.ShareableSiteCode(models.SiteClientApp))
	assert.False(t, models.ShareableSiteCode("blog"))
}

func TestVerifyCandidates(t *testing.T) {
	assert.Equal(t, []models.SecretClass{models.SecretAdmin, models.SecretSite}, models.VerifyCandidates(models.SiteAdminPanel))
	assert.Equal(t, []models.SecretClass{models.SecretClientApp}, models.VerifyCandidates(models.SiteClientApp))
	assert.Equal(t, []models.SecretClass{models.SecretSite}, models.VerifyCandidates(models.SiteGallery))
	assert.Equal(t, []models.SecretClass{models.SecretSite}, models.VerifyCandidates(models.SiteFileDrop))
}

func TestSigningClass(t *testing.T) {
	assert.Equal(t, models.SecretAdmin, models.SigningClass(models.SiteAdminPanel))
	assert.Equal(t, models.SecretClientApp, models.SigningClass(models.SiteClientApp))
	assert.Equal(t, models.SecretSite, models.SigningClass(models.SiteGallery))
}

func TestPasswordUsable(t *testing.T) {
	now := time.Now()

	unlimited := &models.Password{ExpiresAt: now.Add(time.Hour), UsableTimes: 0, UsedTimes: 999}
	assert.True(t, unlimited.Usable(now))

	capped := &models.Password{ExpiresAt: now.Add(time.Hour), UsableTimes: 3, UsedTimes: 2}
	assert.True(t, capped.Usable(now))

	exhausted := &models.Password{ExpiresAt: now.Add(time.Hour), UsableTimes: 3, UsedTimes: 3}
	assert.False(t, exhausted.Usable(now))

	expired := &models.Password{ExpiresAt: now.Add(-time.Minute), UsableTimes: 0}
	assert.False(t, expired.Usable(now))

	var missing *models.Password
	assert.False(t, missing.Usable(now))
}

func TestAttemptRevoked(t *testing.T) {
	live := &models.LoginAttempt{Success: true}
	assert.False(t, live.Revoked())

	invoked := &models.LoginAttempt{Success: true, Invoked: true}
	assert.True(t, invoked.Revoked())

	var missing *models.LoginAttempt
	assert.True(t, missing.Revoked())
}

func TestAdminCredentialIPBlocked(t *testing.T) {
	cred := &models.AdminCredential{BlockedIPs: []string{"203.0.113.66", "198.51.100.9"}}
	assert.True(t, cred.IPBlocked("203.0.113.66"))
	assert.False(t, cred.IPBlocked("203.0.113.7"))
	assert.False(t, cred.IPBlocked(""))
}
