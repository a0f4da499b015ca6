package models

import "time"

// Password is an ephemeral, site-scoped shareable credential. Only the
// bcrypt hash and a masked hint are retained after generation.
type Password struct {
	ID            string    `db:"id"`
	SiteCode      SiteCode  `db:"site_code"`
	Length        int       `db:"length"`
	CreatedAt     time.Time `db:"created_at"`
	ExpiresAt     time.Time `db:"expires_at"`
	UsableTimes   int       `db:"usable_times"` // 0 means unlimited
	UsedTimes     int       `db:"used_times"`
	Hash          string    `db:"password_hash"`
	Hint          string    `db:"password_hint"`
	DeviceAddress *Address  `db:"device_address"`
}

// Usable reports whether the password may still be redeemed. Exhausted or
// expired passwords are permanently unusable even before cleanup deletes them.
func (p *Password) Usable(now time.Time) bool {
	if p == nil || !now.Before(p.ExpiresAt) {
		return false
	}
	return p.UsableTimes == 0 || p.UsedTimes < p.UsableTimes
}

// AdminCredential is the singleton administrator credential plus the IP
// denylist maintained out of band.
type AdminCredential struct {
	Hash          string    `db:"password_hash"`
	LastChangedOn time.Time `db:"last_changed_on"`
	BlockedIPs    []string  `db:"blocked_ips"`
}

// IPBlocked reports whether ip is on the denylist.
func (c *AdminCredential) IPBlocked(ip string) bool {
	for _, blocked := range c.BlockedIPs {
		if blocked == ip {
			return true
		}
	}
	return false
}
