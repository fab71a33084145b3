package billing

import (
	"context"
	"fmt"

	"github.com/warp/obligation-engine/generic"
)

// maxNumberSuffix bounds the collision search so a broken existence oracle
// cannot spin forever.
const maxNumberSuffix = 1000

// BaseRecordNumber is the deterministic record number for a contract period:
// {contract_id}-{YYYY}-{MM}-{cycle index}, optionally prefixed.
func BaseRecordNumber(prefix string, contractID generic.EntityID, cycle generic.Cycle, p generic.Period) string {
	base := fmt.Sprintf("%s-%04d-%02d-%d", contractID, p.Start.Year(), int(p.Start.Month()), cycle.Index(p))
	if prefix != "" {
		return prefix + "-" + base
	}
	return base
}

// ExistsFunc reports whether a record number is already in use.
type ExistsFunc func(ctx context.Context, number string) (bool, error)

// UniqueRecordNumber returns base if free, otherwise base-1, base-2, ...
func UniqueRecordNumber(ctx context.Context, base string, exists ExistsFunc) (string, error) {
	return uniqueFrom(ctx, base, 0, exists)
}

// uniqueFrom starts the search at suffix start (0 = the bare base).
func uniqueFrom(ctx context.Context, base string, start int, exists ExistsFunc) (string, error) {
	for i := start; i <= maxNumberSuffix; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check record number %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no free suffix for %s", generic.ErrDuplicateRecordNumber, base)
}
