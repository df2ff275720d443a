package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"atelier-backend/database"
	"atelier-backend/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type fixture struct {
	ctx  context.Context
	db   *gorm.DB
	deps *Deps
	now  time.Time

	repairs *RepairService
	batches *BatchService

	partner models.Partner
	other   models.Partner
	brand   models.Brand
	device  models.Device
	variant models.DeviceVariant

	techEmployee  models.Employee
	otherEmployee models.Employee

	tech    Actor
	manager Actor
	admin   Actor
	clerk   Actor

	seq int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	f := &fixture{ctx: context.Background(), db: db, now: time.Date(2024, 4, 9, 10, 0, 0, 0, time.UTC)}
	f.deps = NewDeps(db, zap.NewNop())
	f.deps.Now = func() time.Time { return f.now }
	f.repairs = NewRepairService(f.deps)
	f.batches = NewBatchService(f.deps)

	f.partner = models.Partner{Name: "Alice Martin"}
	f.other = models.Partner{Name: "Bob Durand"}
	require.NoError(t, db.Create(&f.partner).Error)
	require.NoError(t, db.Create(&f.other).Error)

	f.brand = models.Brand{Name: "Marantz"}
	require.NoError(t, db.Create(&f.brand).Error)
	f.device = models.Device{Name: "PM6006", BrandID: &f.brand.ID}
	require.NoError(t, db.Create(&f.device).Error)
	f.variant = models.DeviceVariant{DeviceID: f.device.ID, Name: "Black"}
	require.NoError(t, db.Create(&f.variant).Error)

	f.techEmployee = models.Employee{Name: "Pierre"}
	f.otherEmployee = models.Employee{Name: "Julie"}
	require.NoError(t, db.Create(&f.techEmployee).Error)
	require.NoError(t, db.Create(&f.otherEmployee).Error)

	techUser := f.user(t, "Pierre", models.RoleTechnician, &f.techEmployee.ID)
	mgrUser := f.user(t, "Mia", models.RoleManager, nil)
	adminUser := f.user(t, "Root", models.RoleAdmin, nil)
	clerkUser := f.user(t, "Claire", models.RoleUser, nil)

	f.tech = Actor{UserID: techUser.Id, Name: "Pierre", Role: models.RoleTechnician, EmployeeID: &f.techEmployee.ID}
	f.manager = Actor{UserID: mgrUser.Id, Name: "Mia", Role: models.RoleManager}
	f.admin = Actor{UserID: adminUser.Id, Name: "Root", Role: models.RoleAdmin}
	f.clerk = Actor{UserID: clerkUser.Id, Name: "Claire", Role: models.RoleUser}
	return f
}

func (f *fixture) user(t *testing.T, name, role string, employeeID *uint) models.User {
	t.Helper()
	u := models.User{Name: name, Email: strings.ToLower(name) + "@atelier.test", Role: role, Active: true, EmployeeID: employeeID}
	u.Password = []byte("unused")
	require.NoError(t, f.db.Create(&u).Error)
	return u
}

// order inserts a repair order directly, bypassing the workflow.
func (f *fixture) order(t *testing.T, state models.RepairState, mutate ...func(o *models.RepairOrder)) models.RepairOrder {
	t.Helper()
	f.seq++
	o := models.RepairOrder{
		Name:          fmt.Sprintf("RO/T%04d", f.seq),
		EntryDate:     f.now,
		State:         state,
		QuoteState:    models.QuoteNone,
		DeliveryState: models.DeliveryNone,
		Priority:      models.PriorityNormal,
		Warranty:      models.WarrantyNone,
		PartnerID:     &f.partner.ID,
		DeviceID:      &f.device.ID,
	}
	for _, m := range mutate {
		m(&o)
	}
	require.NoError(t, f.db.Create(&o).Error)
	return o
}

func (f *fixture) reload(t *testing.T, id uint) models.RepairOrder {
	t.Helper()
	var o models.RepairOrder
	require.NoError(t, f.db.First(&o, id).Error)
	return o
}

func (f *fixture) openTasks(t *testing.T, orderID uint, taskType string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Activity{}).
		Where("res_model = ? AND res_id = ? AND activity_type = ? AND state = ?", ModelRepairOrder, orderID, taskType, models.ActivityOpen).
		Count(&n).Error)
	return n
}

func (f *fixture) messages(t *testing.T, orderID uint) []string {
	t.Helper()
	var bodies []string
	require.NoError(t, f.db.Model(&models.Message{}).
		Where("res_model = ? AND res_id = ?", ModelRepairOrder, orderID).
		Order("id").Pluck("body", &bodies).Error)
	return bodies
}

func withTechnician(emp *uint, uid string) func(o *models.RepairOrder) {
	return func(o *models.RepairOrder) {
		o.TechnicianEmployeeID = emp
		if uid != "" {
			o.TechnicianUserID = &uid
		}
	}
}

func ptr[T any](v T) *T { return &v }
