package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketDevices = []byte("devices")
	bucketSetup   = []byte("setup")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketDevices, bucketSetup} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) SaveDevice(dev *Device) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevices)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketDevices)
		}
		data, err := json.Marshal(dev)
		if err != nil {
			return err
		}
		return b.Put([]byte(dev.IEEEAddress), data)
	})
}

func (s *BoltStore) GetDevice(ieee string) (*Device, error) {
	var dev Device
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevices)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketDevices)
		}
		data := b.Get([]byte(ieee))
		if data == nil {
			return fmt.Errorf("device %s: %w", ieee, ErrNotFound)
		}
		return json.Unmarshal(data, &dev)
	})
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

func (s *BoltStore) DeleteDevice(ieee string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevices)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketDevices)
		}
		return b.Delete([]byte(ieee))
	})
}

func (s *BoltStore) ListDevices() ([]*Device, error) {
	var devices []*Device
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevices)
		if b == nil {
			return nil // no bucket = no devices
		}
		devices = make([]*Device, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var dev Device
			if err := json.Unmarshal(v, &dev); err != nil {
				return err
			}
			devices = append(devices, &dev)
			return nil
		})
	})
	return devices, err
}

func (s *BoltStore) UpdateDevice(ieee string, fn func(dev *Device) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevices)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketDevices)
		}
		data := b.Get([]byte(ieee))
		if data == nil {
			return fmt.Errorf("device %s: %w", ieee, ErrNotFound)
		}
		var dev Device
		if err := json.Unmarshal(data, &dev); err != nil {
			return err
		}
		if err := fn(&dev); err != nil {
			return err
		}
		out, err := json.Marshal(&dev)
		if err != nil {
			return err
		}
		return b.Put([]byte(ieee), out)
	})
}

func (s *BoltStore) SaveSetup(rec *Setup) (*Setup, error) {
	merged := Setup{IEEEAddress: rec.IEEEAddress}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSetup)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSetup)
		}
		if data := b.Get([]byte(rec.IEEEAddress)); data != nil {
			if err := json.Unmarshal(data, &merged); err != nil {
				return err
			}
		}
		merged.merge(rec)
		data, err := json.Marshal(&merged)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.IEEEAddress), data)
	})
	if err != nil {
		return nil, err
	}
	return &merged, nil
}

func (s *BoltStore) GetSetup(ieee string) (*Setup, error) {
	var rec Setup
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSetup)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSetup)
		}
		data := b.Get([]byte(ieee))
		if data == nil {
			return fmt.Errorf("setup %s: %w", ieee, ErrNotFound)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
