// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package acctledger

import (
	"context"
	"database/sql"

	"github.com/oklog/ulid/v2"
)

// Recharge overwrites the four quota fields of an account and returns the
// stored quota. Nothing is merged with the previous quota and no relation
// between the soft and hard limits is checked. Applying the same quota twice
// leaves the account as the first call did, apart from updated_at.
func (s *Store) Recharge(ctx context.Context, accountID ulid.ULID,
	quota Quota) (Quota, error) {

	stored := Quota{
		SoftQuota: quota.SoftQuota,
		HardQuota: quota.HardQuota,
		StaleAt:   dbTime(quota.StaleAt),
		ExpiresAt: dbTime(quota.ExpiresAt),
	}

	err := s.withTx(ctx, "recharge", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE account
			SET soft_quota = $1,
				hard_quota = $2,
				stale_at = $3,
				expires_at = $4,
				updated_at = $5
			WHERE ulid = $6`,
			stored.SoftQuota, stored.HardQuota, stored.StaleAt,
			stored.ExpiresAt, s.now(), accountID.String(),
		)
		if err != nil {
			return err
		}

		return expectRow(res, ErrAccountNotFound,
			"account %v not found", accountID)
	})
	if err != nil {
		return Quota{}, err
	}

	log.Infof("Recharged account %v: soft=%d hard=%d stale_at=%v "+
		"expires_at=%v", accountID, stored.SoftQuota, stored.HardQuota,
		stored.StaleAt, stored.ExpiresAt)

	return stored, nil
}
