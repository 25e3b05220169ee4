package storage

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/models"
)

// DatabaseStore is the PostgreSQL implementation. The *gorm.DB must be
// opened with TranslateError so unique violations surface as
// gorm.ErrDuplicatedKey.
type DatabaseStore struct {
	db *gorm.DB
}

func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func (s *DatabaseStore) Kind() string { return "postgres" }

// Migrate creates or updates every table the engine owns.
func (s *DatabaseStore) Migrate() error {
	return s.db.AutoMigrate(
		&models.Business{},
		&models.Customer{},
		&models.Reservation{},
		&models.DialogueContext{},
	)
}

func (s *DatabaseStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "get sql db")
	}
	return sqlDB.PingContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Business operations
func (s *DatabaseStore) GetBusinessByChannel(ctx context.Context, channelID string) (*models.Business, error) {
	var b models.Business
	if err := s.db.WithContext(ctx).Where("channel_id = ?", channelID).First(&b).Error; err != nil {
		return nil, errors.Wrap(notFound(err), "get business by channel")
	}
	return &b, nil
}

func (s *DatabaseStore) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	var b models.Business
	if err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, errors.Wrap(notFound(err), "get business")
	}
	return &b, nil
}

func (s *DatabaseStore) SaveBusiness(ctx context.Context, b *models.Business) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel_id"}},
		UpdateAll: true,
	}).Create(b).Error
	return errors.Wrap(err, "save business")
}

// Customer operations
func (s *DatabaseStore) GetCustomer(ctx context.Context, phone, businessID string) (*models.Customer, error) {
	var c models.Customer
	err := s.db.WithContext(ctx).
		Where("phone = ? AND business_id = ?", phone, businessID).
		First(&c).Error
	if err != nil {
		return nil, errors.Wrap(notFound(err), "get customer")
	}
	return &c, nil
}

func (s *DatabaseStore) UpsertCustomer(ctx context.Context, phone, businessID string, upd models.CustomerUpdate) (*models.Customer, error) {
	var out models.Customer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := models.Customer{ID: uuid.NewString(), Phone: phone, BusinessID: businessID}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "phone"}, {Name: "business_id"}},
			DoNothing: true,
		}).Create(&seed).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{"updated_at": time.Now()}
		if upd.Name != "" {
			updates["name"] = upd.Name
		}
		if upd.ReservationAt != nil {
			updates["last_reservation_at"] = *upd.ReservationAt
		}
		if upd.CountReservation {
			updates["reservation_count"] = gorm.Expr("reservation_count + 1")
		}

		q := tx.Model(&models.Customer{}).Where("phone = ? AND business_id = ?", phone, businessID)
		if err := q.Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("phone = ? AND business_id = ?", phone, businessID).First(&out).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "upsert customer")
	}
	return &out, nil
}

// Reservation operations
func (s *DatabaseStore) InsertReservation(ctx context.Context, r *models.Reservation) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	err := s.db.WithContext(ctx).Create(r).Error
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Wrap(err, "insert reservation")
	}

	// The translated error does not name the index; the reference row
	// tells the two unique constraints apart.
	var n int64
	countErr := s.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("business_id = ? AND payment_reference = ?", r.BusinessID, r.PaymentReference).
		Count(&n).Error
	switch {
	case countErr != nil:
		return errors.Wrap(countErr, "classify duplicate reservation")
	case n > 0:
		return ErrDuplicateReservation
	default:
		return ErrDuplicateCode
	}
}

func (s *DatabaseStore) GetReservationByReference(ctx context.Context, businessID, reference string) (*models.Reservation, error) {
	var r models.Reservation
	err := s.db.WithContext(ctx).
		Where("business_id = ? AND payment_reference = ?", businessID, reference).
		First(&r).Error
	if err != nil {
		return nil, errors.Wrap(notFound(err), "get reservation by reference")
	}
	return &r, nil
}

// Dialogue context operations
func (s *DatabaseStore) GetContext(ctx context.Context, customerID, businessID string) (*models.DialogueContext, error) {
	var dc models.DialogueContext
	err := s.db.WithContext(ctx).
		Where("customer_id = ? AND business_id = ?", customerID, businessID).
		First(&dc).Error
	if err != nil {
		return nil, errors.Wrap(notFound(err), "get dialogue context")
	}
	return &dc, nil
}

func (s *DatabaseStore) UpsertContext(ctx context.Context, dc *models.DialogueContext) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "customer_id"}, {Name: "business_id"}},
		UpdateAll: true,
	}).Create(dc).Error
	return errors.Wrap(err, "upsert dialogue context")
}

func (s *DatabaseStore) DeleteContext(ctx context.Context, customerID, businessID string) error {
	err := s.db.WithContext(ctx).
		Where("customer_id = ? AND business_id = ?", customerID, businessID).
		Delete(&models.DialogueContext{}).Error
	return errors.Wrap(err, "delete dialogue context")
}

func (s *DatabaseStore) PurgeExpiredContexts(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&models.DialogueContext{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "purge expired dialogue contexts")
	}
	return res.RowsAffected, nil
}
