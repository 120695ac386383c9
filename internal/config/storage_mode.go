package config

import (
	"fmt"
	"strings"
)

const (
	StorageModeInMemory StorageMode = "in-memory"
	StorageModeDisk     StorageMode = "disk"
	StorageModeExternal StorageMode = "external"
)

// StorageMode selects where keys and verification events are persisted.
type StorageMode string

func (m *StorageMode) Set(s string) error {
	switch StorageMode(strings.ToLower(strings.TrimSpace(s))) {
	case StorageModeInMemory, "":
		*m = StorageModeInMemory
	case StorageModeDisk:
		*m = StorageModeDisk
	case StorageModeExternal:
		*m = StorageModeExternal
	default:
		return fmt.Errorf("unknown storage mode %q (valid: %s, %s, %s)",
			s, StorageModeInMemory, StorageModeDisk, StorageModeExternal)
	}
	return nil
}

func (m *StorageMode) String() string {
	if m == nil || *m == "" {
		return string(StorageModeInMemory)
	}
	return string(*m)
}

func (m *StorageMode) UnmarshalText(text []byte) error {
	return m.Set(string(text))
}

const (
	CacheDriverMemory CacheDriver = "memory"
	CacheDriverRedis  CacheDriver = "redis"
	CacheDriverNone   CacheDriver = "none"
)

// CacheDriver selects the backend caching verification buckets.
type CacheDriver string

func (d *CacheDriver) Set(s string) error {
	switch CacheDriver(strings.ToLower(strings.TrimSpace(s))) {
	case CacheDriverMemory, "":
		*d = CacheDriverMemory
	case CacheDriverRedis:
		*d = CacheDriverRedis
	case CacheDriverNone:
		*d = CacheDriverNone
	default:
		return fmt.Errorf("unknown cache driver %q (valid: %s, %s, %s)",
			s, CacheDriverMemory, CacheDriverRedis, CacheDriverNone)
	}
	return nil
}

func (d *CacheDriver) String() string {
	if d == nil || *d == "" {
		return string(CacheDriverMemory)
	}
	return string(*d)
}

func (d *CacheDriver) UnmarshalText(text []byte) error {
	return d.Set(string(text))
}
