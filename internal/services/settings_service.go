package services

import (
	"context"
	"fmt"
	"strconv"

	"tandem/internal/core"
	applog "tandem/internal/log"
	"tandem/internal/store"
)

// SettingsService reads and writes the app-wide toggles. Reads always go to
// the store so a toggle flipped by one server instance gates the next
// request on any instance.
type SettingsService struct {
	store  store.Store
	logger *applog.Logger
}

func NewSettingsService(st store.Store, logger *applog.Logger) *SettingsService {
	return &SettingsService{
		store:  st,
		logger: logger.WithComponent(applog.ComponentSettings),
	}
}

func (s *SettingsService) Get(ctx context.Context) (core.AppSettings, error) {
	return s.store.GetSettings(ctx)
}

// SetRegistrationEnabled flips the sign-up gate. Admin only.
func (s *SettingsService) SetRegistrationEnabled(ctx context.Context, actor core.User, enabled bool) error {
	return s.setToggle(ctx, actor, store.SettingRegistrationEnabled, enabled)
}

// SetAllowBalanceEdit flips the manual balance edit gate. Admin only.
func (s *SettingsService) SetAllowBalanceEdit(ctx context.Context, actor core.User, enabled bool) error {
	return s.setToggle(ctx, actor, store.SettingAllowBalanceEdit, enabled)
}

func (s *SettingsService) setToggle(ctx context.Context, actor core.User, key string, enabled bool) error {
	if !actor.IsAdmin {
		return fmt.Errorf("only admins can change %s: %w", key, core.ErrUnauthorized)
	}
	if err := s.store.SetSetting(ctx, key, strconv.FormatBool(enabled)); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Setting changed",
		applog.FieldSetting, key, "value", enabled, applog.FieldUserID, actor.ID)
	return nil
}

// SetStashName renames the stash. Any signed-in user may do this.
func (s *SettingsService) SetStashName(ctx context.Context, name string) error {
	if len(name) > 100 {
		return core.ErrNameTooLong
	}
	return s.store.SetSetting(ctx, store.SettingStashName, name)
}
