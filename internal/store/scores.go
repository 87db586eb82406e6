package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lox/mpawatch/internal/models"
)

// InsertScore appends a computed health score to the region's history.
func (s *Store) InsertScore(ctx context.Context, sc models.CompositeHealthScore) error {
	subs, err := json.Marshal(sc.SubScores)
	if err != nil {
		return fmt.Errorf("marshal sub scores: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO score_history (region_id, computed_at, score, confidence, available_sources, total_sources, sub_scores_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sc.RegionID, sc.ComputedAt.UTC(), sc.Score, string(sc.Confidence),
		sc.AvailableSources, sc.TotalSources, string(subs))
	return err
}

// GetScoreHistory returns scores computed for a region since the given time,
// oldest first.
func (s *Store) GetScoreHistory(ctx context.Context, regionID string, since time.Time) ([]models.CompositeHealthScore, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT region_id, computed_at, score, confidence, available_sources, total_sources, sub_scores_json
		FROM score_history
		WHERE region_id = ? AND computed_at >= ?
		ORDER BY computed_at
	`, regionID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []models.CompositeHealthScore
	for rows.Next() {
		var (
			sc         models.CompositeHealthScore
			confidence string
			subs       string
		)
		if err := rows.Scan(&sc.RegionID, &sc.ComputedAt, &sc.Score, &confidence,
			&sc.AvailableSources, &sc.TotalSources, &subs); err != nil {
			return nil, err
		}
		sc.Confidence = models.Confidence(confidence)
		if subs != "" {
			if err := json.Unmarshal([]byte(subs), &sc.SubScores); err != nil {
				return nil, fmt.Errorf("decode sub scores for %s: %w", sc.RegionID, err)
			}
		}
		scores = append(scores, sc)
	}
	return scores, rows.Err()
}
