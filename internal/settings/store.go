package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
)

// Store reads and writes the singleton settings row. Nothing is cached:
// every caller gets the current value.
type Store struct {
	Bun    *bun.DB
	Logger *logger.Logger
	Now    func() time.Time
}

func NewStore(db *bun.DB, log *logger.Logger) *Store {
	return &Store{Bun: db, Logger: log, Now: time.Now}
}

// Get returns the stored settings laid over the defaults, creating the row
// with defaults when it does not exist yet.
func (s *Store) Get(ctx context.Context) (models.GlobalSettings, error) {
	return s.get(ctx, s.Bun, false)
}

func (s *Store) get(ctx context.Context, db bun.IDB, forUpdate bool) (models.GlobalSettings, error) {
	defaults := models.DefaultSettings(s.Now())

	var row models.SettingsRow
	q := db.NewSelect().Model(&row).Where("id = ?", models.SettingsRowID).Limit(1)
	if forUpdate && s.Bun.Dialect().Name() == dialect.PG {
		q = q.For("UPDATE")
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		s.Logger.Info("SETTINGS", "No settings row found, creating defaults")
		if err := s.insertDefaults(ctx, db, defaults); err != nil {
			return models.GlobalSettings{}, err
		}
		return defaults, nil
	}
	if err != nil {
		return models.GlobalSettings{}, fmt.Errorf("load settings: %w", err)
	}

	return overlay(defaults, row.SettingsData)
}

func (s *Store) insertDefaults(ctx context.Context, db bun.IDB, defaults models.GlobalSettings) error {
	data, err := toMap(defaults)
	if err != nil {
		return err
	}
	row := models.SettingsRow{ID: models.SettingsRowID, SettingsData: data, UpdatedAt: s.Now().UTC()}
	if _, err := db.NewInsert().Model(&row).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert default settings: %w", err)
	}
	return nil
}

// Update merges patch into the current settings and stores the result.
func (s *Store) Update(ctx context.Context, patch models.SettingsPatch) (models.GlobalSettings, error) {
	if err := validatePatch(patch); err != nil {
		return models.GlobalSettings{}, err
	}

	var updated models.GlobalSettings
	err := s.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := s.get(ctx, tx, true)
		if err != nil {
			return err
		}
		updated = current.Apply(patch)

		data, err := toMap(updated)
		if err != nil {
			return err
		}
		row := models.SettingsRow{ID: models.SettingsRowID, SettingsData: data, UpdatedAt: s.Now().UTC()}
		_, err = tx.NewInsert().
			Model(&row).
			On("CONFLICT (id) DO UPDATE").
			Set("settings_data = EXCLUDED.settings_data").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return err
	})
	if err != nil {
		return models.GlobalSettings{}, fmt.Errorf("update settings: %w", err)
	}

	s.Logger.Info("SETTINGS", "Global settings updated")
	return updated, nil
}

func validatePatch(p models.SettingsPatch) error {
	if p.TicketPrice != nil && *p.TicketPrice <= 0 {
		return models.NewValidationError("ticketPrice", "must be positive")
	}
	amounts := map[string]*int64{
		"jackpotAmount":    p.JackpotAmount,
		"accumulatedPool":  p.AccumulatedPool,
		"dailyPrizeAmount": p.DailyPrizeAmount,
		"topBuyerPrize":    p.TopBuyerPrize,
	}
	for field, v := range amounts {
		if v != nil && *v < 0 {
			return models.NewValidationError(field, "cannot be negative")
		}
	}
	return nil
}

func toMap(s models.GlobalSettings) (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func overlay(defaults models.GlobalSettings, stored map[string]any) (models.GlobalSettings, error) {
	if len(stored) == 0 {
		return defaults, nil
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return models.GlobalSettings{}, err
	}
	out := defaults
	if err := json.Unmarshal(raw, &out); err != nil {
		return models.GlobalSettings{}, fmt.Errorf("decode settings: %w", err)
	}
	return out, nil
}
