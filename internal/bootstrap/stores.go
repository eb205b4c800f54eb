package bootstrap

import (
	"github.com/eleven-am/wearable-voice/internal/device"
	"github.com/eleven-am/wearable-voice/internal/utterance"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideDeviceStore(db *gorm.DB) *device.Store {
	return device.NewStore(db)
}

func ProvideUtteranceStore(db *gorm.DB) *utterance.Store {
	return utterance.NewStore(db)
}

func RunMigrations(deviceStore *device.Store, utteranceStore *utterance.Store) error {
	if err := deviceStore.Migrate(); err != nil {
		return err
	}
	return utteranceStore.Migrate()
}

var StoresModule = fx.Options(
	fx.Provide(
		ProvideDeviceStore,
		ProvideUtteranceStore,
	),
	fx.Invoke(RunMigrations),
)
