package drive

import (
	"context"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/gorm"
)

// EnforceRetention retires the oldest versions of a file beyond limit.
// Retired rows stay for history with no blob and zero size.
func (s *Service) EnforceRetention(ctx context.Context, projectID string, parentID *string, filename string, limit int) (RetentionResult, error) {
	result := RetentionResult{Retired: []int{}}
	if limit <= 0 {
		return result, nil
	}

	versions, err := listCohort(ctx, s.db, projectID, parentID, filename, StatusActive, StatusTrashed)
	if err != nil {
		return result, err
	}
	if len(versions) <= limit {
		return result, nil
	}

	// versions are ascending, the head is the oldest
	candidates := versions[:len(versions)-limit]
	retire := make([]Node, 0, len(candidates))
	for i := range candidates {
		if candidates[i].BlobKey == nil {
			continue
		}
		s.deleteBlobBestEffort(ctx, *candidates[i].BlobKey, "retention")
		retire = append(retire, candidates[i])
	}
	if len(retire) == 0 {
		return result, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock()
		for i := range retire {
			res := tx.Model(&Node{}).
				Where("id = ? AND blob_key = ?", retire[i].ID, *retire[i].BlobKey).
				Updates(map[string]any{
					"blob_key":   nil,
					"size":       0,
					"updated_at": now,
				})
			if res.Error != nil {
				return errors.Wrap(res.Error, "retire version")
			}
			if res.RowsAffected == 0 {
				continue
			}
			result.Retired = append(result.Retired, retire[i].Version)
			result.FreedBytes += retire[i].Size
		}
		return s.applyQuotaDelta(ctx, tx, projectID, -result.FreedBytes)
	})
	if err != nil {
		return RetentionResult{}, err
	}

	s.metrics.recordRetired(len(result.Retired))
	s.LoggerFromContext(ctx).Info("retired file versions",
		zap.String("project_id", projectID),
		zap.String("filename", filename),
		zap.Ints("versions", result.Retired),
		zap.Int64("freed_bytes", result.FreedBytes))
	return result, nil
}
