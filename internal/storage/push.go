package storage

import (
	"fmt"

	"techpaint/internal/models"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

type DBPushSubscription struct {
	Endpoint  string `msgpack:"endpoint"`
	Auth      string `msgpack:"auth"`
	P256dh    string `msgpack:"p256dh"`
	CreatedAt int64  `msgpack:"createdAt"`
}

func (p *DBPushSubscription) Key() []byte {
	return []byte(p.Endpoint)
}

func (p *DBPushSubscription) MarshalBinary() (data []byte, err error) {
	type alias DBPushSubscription
	return msgpack.Marshal((*alias)(p))
}

func (p *DBPushSubscription) UnmarshalBinary(data []byte) error {
	type alias DBPushSubscription
	return msgpack.Unmarshal(data, (*alias)(p))
}

// UpsertPushSubscription stores a browser push subscription of a user.
// Subscriptions are keyed by endpoint.
func (s *BboltStorage) UpsertPushSubscription(userID string, sub models.PushSubscription) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketUsers).Get([]byte(userID)) == nil {
			return models.ErrNotFound
		}
		b, err := tx.Bucket(bucketSubscriptions).CreateBucketIfNotExists([]byte(userID))
		if err != nil {
			return err
		}
		dbSub := &DBPushSubscription{
			Endpoint:  sub.Endpoint,
			Auth:      sub.Keys.Auth,
			P256dh:    sub.Keys.P256dh,
			CreatedAt: sub.CreatedAt,
		}
		data, err := dbSub.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal push subscription: %w", err)
		}
		return b.Put(dbSub.Key(), data)
	})
}

func (s *BboltStorage) ListPushSubscriptions(userID string) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSubscriptions).Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var dbSub DBPushSubscription
			if err := dbSub.UnmarshalBinary(v); err != nil {
				return err
			}
			subs = append(subs, models.PushSubscription{
				Endpoint: dbSub.Endpoint,
				Keys: models.PushKeys{
					Auth:   dbSub.Auth,
					P256dh: dbSub.P256dh,
				},
				CreatedAt: dbSub.CreatedAt,
			})
			return nil
		})
	})
	return subs, err
}

func (s *BboltStorage) DeletePushSubscription(userID, endpoint string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSubscriptions).Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(endpoint))
	})
}
