// Package hub owns the device registry: every announced or manually
// declared receiver gets one facade, kept alive across address moves
// and reconnects until shutdown.
package hub

import (
	"log"
	"sync"

	"github.com/strefethen/cast-hub-go/internal/cast"
	"github.com/strefethen/cast-hub-go/internal/config"
	"github.com/strefethen/cast-hub-go/internal/device"
	"github.com/strefethen/cast-hub-go/internal/discovery"
	"github.com/strefethen/cast-hub-go/internal/mediainfo"
	"github.com/strefethen/cast-hub-go/internal/statestore"
)

type Service struct {
	cfg      config.Config
	store    *statestore.Store
	resolver *mediainfo.Resolver
	factory  cast.TransportFactory

	scanner   *discovery.Scanner
	discovery *discovery.Service

	mu      sync.RWMutex
	facades map[string]*device.Facade
}

// NewService builds the registry around an empty scanner. The factory
// decides how facades reach real devices; tests inject fakes here.
func NewService(cfg config.Config, store *statestore.Store, resolver *mediainfo.Resolver, factory cast.TransportFactory) *Service {
	service := &Service{
		cfg:      cfg,
		store:    store,
		resolver: resolver,
		factory:  factory,
		facades:  make(map[string]*device.Facade),
	}
	service.scanner = discovery.NewScanner(service.onFound, service.onUpdated)
	service.discovery = discovery.NewService(cfg, service.scanner)
	return service
}

// Start seeds manually declared devices and begins network discovery.
func (service *Service) Start() error {
	manual, err := service.cfg.ManualDevices()
	if err != nil {
		return err
	}
	for _, m := range manual {
		service.scanner.Observe(discovery.Announcement{Name: m.Name, Host: m.Host, Port: m.Port})
	}
	return service.discovery.Start()
}

// Observe feeds an announcement directly into the registry, bypassing
// network discovery.
func (service *Service) Observe(a discovery.Announcement) {
	service.scanner.Observe(a)
}

func (service *Service) onFound(a discovery.Announcement) {
	id := device.Identity(a.Name)

	service.mu.Lock()
	if _, ok := service.facades[id]; ok {
		service.mu.Unlock()
		return
	}
	// Reserve the slot before the facade connects so a racing
	// announcement cannot build a second one.
	service.facades[id] = nil
	service.mu.Unlock()

	facade, err := device.New(a.Name, cast.Target{Host: a.Host, Port: a.Port}, service.cfg, service.store, service.resolver, service.factory)
	if err != nil {
		log.Printf("%s - cannot initialize device: %v", id, err)
		service.mu.Lock()
		delete(service.facades, id)
		service.mu.Unlock()
		return
	}

	service.mu.Lock()
	service.facades[id] = facade
	service.mu.Unlock()
	log.Printf("%s - added device %q at %s:%d", id, a.Name, a.Host, a.Port)
}

func (service *Service) onUpdated(a discovery.Announcement) {
	if facade := service.GetDevice(device.Identity(a.Name)); facade != nil {
		facade.SetTarget(cast.Target{Host: a.Host, Port: a.Port})
	}
}

// GetDevices returns all registered facades.
func (service *Service) GetDevices() []*device.Facade {
	service.mu.RLock()
	defer service.mu.RUnlock()
	facades := make([]*device.Facade, 0, len(service.facades))
	for _, f := range service.facades {
		if f != nil {
			facades = append(facades, f)
		}
	}
	return facades
}

// GetDevice returns the facade for the given id, or nil.
func (service *Service) GetDevice(id string) *device.Facade {
	service.mu.RLock()
	defer service.mu.RUnlock()
	return service.facades[id]
}

// Reconnect revives a device that exhausted its retry budget.
func (service *Service) Reconnect(id string) bool {
	facade := service.GetDevice(id)
	if facade == nil {
		return false
	}
	facade.Reconnect()
	return true
}

// Stop shuts down discovery and closes every facade.
func (service *Service) Stop() {
	service.discovery.Stop()

	service.mu.Lock()
	facades := service.facades
	service.facades = make(map[string]*device.Facade)
	service.mu.Unlock()

	for _, f := range facades {
		if f != nil {
			f.Close()
		}
	}
}
