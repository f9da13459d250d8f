package services

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fenilmodi00/ipo-allotment/models"
	"github.com/fenilmodi00/ipo-allotment/shared"
	"github.com/sirupsen/logrus"
)

// AdapterConstructor builds a registrar adapter on first use
type AdapterConstructor func() RegistrarAdapter

// RegistrarFactory resolves registrar types to lazily constructed adapter singletons
type RegistrarFactory struct {
	constructors map[models.RegistrarType]AdapterConstructor
	adapters     map[models.RegistrarType]RegistrarAdapter
	mutex        sync.Mutex
}

// NewRegistrarFactory creates a factory for the built-in registrars sharing opts
func NewRegistrarFactory(opts AdapterOptions) *RegistrarFactory {
	factory := &RegistrarFactory{
		constructors: make(map[models.RegistrarType]AdapterConstructor),
		adapters:     make(map[models.RegistrarType]RegistrarAdapter),
	}

	factory.Register(models.RegistrarLinkIntime, func() RegistrarAdapter { return NewLinkIntimeAdapter(opts) })
	factory.Register(models.RegistrarKFintech, func() RegistrarAdapter { return NewKFintechAdapter(opts) })
	factory.Register(models.RegistrarBigshare, func() RegistrarAdapter { return NewBigshareAdapter(opts) })

	return factory
}

// NewEmptyRegistrarFactory creates a factory with no registrars; tests register their own
func NewEmptyRegistrarFactory() *RegistrarFactory {
	return &RegistrarFactory{
		constructors: make(map[models.RegistrarType]AdapterConstructor),
		adapters:     make(map[models.RegistrarType]RegistrarAdapter),
	}
}

// Register adds or replaces the constructor for a registrar type.
// A previously built instance for that type is discarded.
func (f *RegistrarFactory) Register(registrar models.RegistrarType, constructor AdapterConstructor) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.constructors[registrar] = constructor
	delete(f.adapters, registrar)
}

// Resolve returns the adapter singleton for registrar, constructing it on first use
func (f *RegistrarFactory) Resolve(registrar models.RegistrarType) (RegistrarAdapter, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if adapter, exists := f.adapters[registrar]; exists {
		return adapter, nil
	}

	constructor, exists := f.constructors[registrar]
	if !exists {
		return nil, shared.NewServiceError(shared.ErrorCategoryConfiguration, shared.CodeUnsupportedRegistrar,
			fmt.Sprintf("unsupported registrar: %s", registrar), "RegistrarFactory", "resolve", false, nil)
	}

	adapter := constructor()
	f.adapters[registrar] = adapter

	logrus.WithFields(logrus.Fields{
		"component": "RegistrarFactory",
		"registrar": registrar,
	}).Debug("Constructed registrar adapter")

	return adapter, nil
}

// IsSupported reports whether an adapter exists for registrar
func (f *RegistrarFactory) IsSupported(registrar models.RegistrarType) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	_, exists := f.constructors[registrar]
	return exists
}

// SupportedRegistrars lists the supported registrar types in sorted order
func (f *RegistrarFactory) SupportedRegistrars() []models.RegistrarType {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	registrars := make([]models.RegistrarType, 0, len(f.constructors))
	for registrar := range f.constructors {
		registrars = append(registrars, registrar)
	}
	sort.Slice(registrars, func(i, j int) bool { return registrars[i] < registrars[j] })
	return registrars
}
