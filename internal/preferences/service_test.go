package preferences

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/scanscore/internal/model"
)

// --- モック ---

type mockPreferencesRepo struct {
	findByDeviceIDFn func(ctx context.Context, deviceID string) (*model.UserPreferences, error)
	upsertFn         func(ctx context.Context, deviceID string, prefs model.UserPreferences) error
}

func (m *mockPreferencesRepo) FindByDeviceID(ctx context.Context, deviceID string) (*model.UserPreferences, error) {
	if m.findByDeviceIDFn != nil {
		return m.findByDeviceIDFn(ctx, deviceID)
	}
	return nil, nil
}

func (m *mockPreferencesRepo) Upsert(ctx context.Context, deviceID string, prefs model.UserPreferences) error {
	return m.upsertFn(ctx, deviceID, prefs)
}

func TestService_Get_DefaultsWhenUnsaved(t *testing.T) {
	svc := NewService(&mockPreferencesRepo{})

	got, err := svc.Get(context.Background(), "device-1")
	if err != nil {
		t.Fatalf("Get がエラーを返した: %v", err)
	}
	if got != model.DefaultPreferences() {
		t.Errorf("Get = %+v, want defaults", got)
	}
}

func TestService_Get_Stored(t *testing.T) {
	stored := model.UserPreferences{AvoidMSG: true}
	svc := NewService(&mockPreferencesRepo{
		findByDeviceIDFn: func(ctx context.Context, deviceID string) (*model.UserPreferences, error) {
			return &stored, nil
		},
	})

	got, err := svc.Get(context.Background(), "device-1")
	if err != nil || got != stored {
		t.Errorf("Get = %+v, %v", got, err)
	}
}

func TestService_Update(t *testing.T) {
	var saved model.UserPreferences
	svc := NewService(&mockPreferencesRepo{
		upsertFn: func(ctx context.Context, deviceID string, prefs model.UserPreferences) error {
			saved = prefs
			return nil
		},
	})

	prefs := model.UserPreferences{AvoidNitrites: true}
	got, err := svc.Update(context.Background(), "device-1", prefs)
	if err != nil || got != prefs || saved != prefs {
		t.Errorf("Update = %+v, %v (saved %+v)", got, err, saved)
	}
}

func TestService_Update_Error(t *testing.T) {
	svc := NewService(&mockPreferencesRepo{
		upsertFn: func(ctx context.Context, deviceID string, prefs model.UserPreferences) error {
			return errors.New("db down")
		},
	})

	if _, err := svc.Update(context.Background(), "device-1", model.UserPreferences{}); err == nil {
		t.Error("保存に失敗した場合はエラーを返すべき")
	}
}

func TestService_Resolve(t *testing.T) {
	stored := model.UserPreferences{AvoidCarrageenan: true}
	failing := false
	svc := NewService(&mockPreferencesRepo{
		findByDeviceIDFn: func(ctx context.Context, deviceID string) (*model.UserPreferences, error) {
			if failing {
				return nil, errors.New("db down")
			}
			return &stored, nil
		},
	})
	ctx := context.Background()

	explicit := &model.UserPreferences{AvoidMSG: true}
	if got := svc.Resolve(ctx, "device-1", explicit); got != explicit {
		t.Error("明示された設定を優先するべき")
	}
	if got := svc.Resolve(ctx, "device-1", nil); *got != stored {
		t.Errorf("保存済みの設定を使うべき: %+v", *got)
	}
	if got := svc.Resolve(ctx, "", nil); *got != model.DefaultPreferences() {
		t.Errorf("端末IDがない場合は既定値を使うべき: %+v", *got)
	}
	failing = true
	if got := svc.Resolve(ctx, "device-1", nil); *got != model.DefaultPreferences() {
		t.Errorf("取得失敗時は既定値を使うべき: %+v", *got)
	}
}
