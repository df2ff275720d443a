package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"atelier-backend/models"
	"atelier-backend/utils"
)

type CatalogService struct {
	*Deps
}

func NewCatalogService(d *Deps) *CatalogService { return &CatalogService{Deps: d} }

type BrandInput struct {
	Name string `json:"name" validate:"required,max=128"`
}

func (s *CatalogService) CreateBrand(ctx context.Context, in BrandInput) (*models.Brand, error) {
	utils.Normalize(&in)
	b := models.Brand{Name: in.Name}
	if err := s.conn(ctx).Create(&b).Error; err != nil {
		if isDuplicate(err) {
			return nil, invalid("brand %q already exists", in.Name)
		}
		return nil, err
	}
	return &b, nil
}

type CategoryInput struct {
	Name     string `json:"name" validate:"required,max=128"`
	ParentID *uint  `json:"parent_id"`
}

// CreateCategory stores the ancestor path so subtrees can be queried with a prefix match.
func (s *CatalogService) CreateCategory(ctx context.Context, in CategoryInput) (*models.DeviceCategory, error) {
	utils.Normalize(&in)
	var cat models.DeviceCategory
	err := s.inTx(ctx, func(ctx context.Context) error {
		cat = models.DeviceCategory{Name: in.Name, ParentID: in.ParentID, CompleteName: in.Name}
		var parent models.DeviceCategory
		if in.ParentID != nil {
			if err := s.conn(ctx).First(&parent, *in.ParentID).Error; err != nil {
				return notFound(err, "parent category")
			}
			cat.CompleteName = parent.CompleteName + " / " + in.Name
		}
		if err := s.conn(ctx).Create(&cat).Error; err != nil {
			return err
		}
		cat.ParentPath = parent.ParentPath + strconv.FormatUint(uint64(cat.ID), 10) + "/"
		return s.conn(ctx).Model(&cat).Update("parent_path", cat.ParentPath).Error
	})
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

// SubtreeIDs returns the category and all its descendants.
func (s *CatalogService) SubtreeIDs(ctx context.Context, categoryID uint) ([]uint, error) {
	var cat models.DeviceCategory
	if err := s.conn(ctx).First(&cat, categoryID).Error; err != nil {
		return nil, notFound(err, "category")
	}
	var ids []uint
	err := s.conn(ctx).Model(&models.DeviceCategory{}).
		Where("parent_path LIKE ?", cat.ParentPath+"%").
		Order("id").Pluck("id", &ids).Error
	return ids, err
}

// AncestorIDs parses a parent path such as "1/4/9/" into [1 4 9].
func AncestorIDs(parentPath string) []uint {
	var ids []uint
	for _, part := range strings.Split(strings.TrimSuffix(parentPath, "/"), "/") {
		if n, err := strconv.ParseUint(part, 10, 64); err == nil {
			ids = append(ids, uint(n))
		}
	}
	return ids
}

type DeviceInput struct {
	Name       string   `json:"name" validate:"required,max=128"`
	BrandID    *uint    `json:"brand_id"`
	CategoryID *uint    `json:"category_id"`
	Variants   []string `json:"variants" validate:"dive,max=128"`
}

func (s *CatalogService) CreateDevice(ctx context.Context, in DeviceInput) (*models.Device, error) {
	utils.Normalize(&in)
	d := models.Device{Name: in.Name, BrandID: in.BrandID, CategoryID: in.CategoryID}
	for _, v := range in.Variants {
		if v = strings.TrimSpace(v); v != "" {
			d.Variants = append(d.Variants, models.DeviceVariant{Name: v})
		}
	}
	if err := s.conn(ctx).Create(&d).Error; err != nil {
		if isDuplicate(err) {
			return nil, invalid("device %q already exists for this brand", in.Name)
		}
		return nil, err
	}
	return &d, nil
}

// ListDevices lists devices of a category subtree, or all devices when categoryID is zero.
func (s *CatalogService) ListDevices(ctx context.Context, categoryID uint) ([]models.Device, error) {
	q := s.conn(ctx).Preload("Brand").Preload("Variants").Order("name")
	if categoryID != 0 {
		ids, err := s.SubtreeIDs(ctx, categoryID)
		if err != nil {
			return nil, err
		}
		q = q.Where("category_id IN ?", ids)
	}
	var out []models.Device
	return out, q.Find(&out).Error
}

type ReclassifyInput struct {
	DeviceIDs  []uint `json:"device_ids" validate:"required,min=1"`
	CategoryID uint   `json:"category_id" validate:"required"`
	BrandID    *uint  `json:"brand_id"`
}

// Reclassify moves devices to another category and optionally another brand.
func (s *CatalogService) Reclassify(ctx context.Context, in ReclassifyInput) (int64, error) {
	var affected int64
	err := s.inTx(ctx, func(ctx context.Context) error {
		var cat models.DeviceCategory
		if err := s.conn(ctx).First(&cat, in.CategoryID).Error; err != nil {
			return notFound(err, "category")
		}
		vals := map[string]any{"category_id": cat.ID}
		if in.BrandID != nil {
			var b models.Brand
			if err := s.conn(ctx).First(&b, *in.BrandID).Error; err != nil {
				return notFound(err, "brand")
			}
			vals["brand_id"] = b.ID
		}
		res := s.conn(ctx).Model(&models.Device{}).Where("id IN ?", uniqueIDs(in.DeviceIDs)).Updates(vals)
		if res.Error != nil {
			if isDuplicate(res.Error) {
				return invalid("the target brand already has a device with the same name")
			}
			return res.Error
		}
		affected = res.RowsAffected
		return nil
	})
	return affected, err
}

type UnitInput struct {
	DeviceID     uint    `json:"device_id" validate:"required"`
	VariantID    *uint   `json:"variant_id"`
	SerialNumber *string `json:"serial_number" validate:"omitempty,max=128"`
	PartnerID    *uint   `json:"partner_id"`
}

// CreateUnit registers a physical device. (device, serial) is unique.
func (s *CatalogService) CreateUnit(ctx context.Context, in UnitInput) (*models.DeviceUnit, error) {
	utils.Normalize(&in)
	if in.SerialNumber != nil && *in.SerialNumber == "" {
		in.SerialNumber = nil
	}
	u := models.DeviceUnit{
		DeviceID:        in.DeviceID,
		VariantID:       in.VariantID,
		SerialNumber:    in.SerialNumber,
		PartnerID:       in.PartnerID,
		FunctionalState: models.FunctionalBroken,
		StockState:      models.StockClient,
	}
	err := s.inTx(ctx, func(ctx context.Context) error {
		if in.VariantID != nil {
			var v models.DeviceVariant
			if err := s.conn(ctx).First(&v, *in.VariantID).Error; err != nil {
				return notFound(err, "device variant")
			}
			if v.DeviceID != in.DeviceID {
				return invalid("variant %s does not belong to this device", v.Name)
			}
		}
		if err := s.conn(ctx).Create(&u).Error; err != nil {
			if isDuplicate(err) {
				return invalid("a unit with serial number %q already exists for this device", u.Serial())
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

type TagInput struct {
	Name        string `json:"name" validate:"required,max=128"`
	Color       int    `json:"color" validate:"gte=0,lte=11"`
	IsGlobal    bool   `json:"is_global"`
	CategoryIDs []uint `json:"category_ids"`
}

// CreateTag returns the existing tag when the name matches case-insensitively,
// extending its categories when it is not global.
func (s *CatalogService) CreateTag(ctx context.Context, in TagInput) (tag *models.RepairTag, created bool, err error) {
	utils.Normalize(&in)
	err = s.inTx(ctx, func(ctx context.Context) error {
		var cats []models.DeviceCategory
		if len(in.CategoryIDs) > 0 && !in.IsGlobal {
			if err := s.conn(ctx).Where("id IN ?", uniqueIDs(in.CategoryIDs)).Find(&cats).Error; err != nil {
				return err
			}
		}

		var existing models.RepairTag
		err := s.conn(ctx).Where("LOWER(name) = ?", strings.ToLower(in.Name)).Limit(1).Find(&existing).Error
		if err != nil {
			return err
		}
		if existing.ID != 0 {
			if !existing.IsGlobal && len(cats) > 0 {
				if err := s.conn(ctx).Model(&existing).Association("Categories").Append(cats); err != nil {
					return err
				}
			}
			tag = &existing
			return nil
		}

		t := models.RepairTag{Name: in.Name, Color: in.Color, IsGlobal: in.IsGlobal, Categories: cats}
		if err := s.conn(ctx).Create(&t).Error; err != nil {
			if isDuplicate(err) {
				return invalid("tag %q already exists", in.Name)
			}
			return err
		}
		tag, created = &t, true
		return nil
	})
	return tag, created, err
}

// TagsForCategory lists global tags plus tags scoped to the category or one of its ancestors.
func (s *CatalogService) TagsForCategory(ctx context.Context, categoryID uint, search string) ([]models.RepairTag, error) {
	q := s.conn(ctx).Model(&models.RepairTag{})
	if categoryID != 0 {
		var cat models.DeviceCategory
		if err := s.conn(ctx).First(&cat, categoryID).Error; err != nil {
			return nil, notFound(err, "category")
		}
		scope := AncestorIDs(cat.ParentPath)
		if len(scope) == 0 {
			scope = []uint{cat.ID}
		}
		q = q.Where("is_global = ? OR id IN (?)", true,
			s.conn(ctx).Table("repair_tag_categories").Select("repair_tag_id").Where("device_category_id IN ?", scope))
	}
	for _, term := range strings.Fields(search) {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(term)+"%")
	}
	var tags []models.RepairTag
	err := q.Order("name").Find(&tags).Error
	return tags, err
}

type NotesTemplateInput struct {
	Name       string `json:"name" validate:"required,max=128"`
	Body       string `json:"body" validate:"required"`
	CategoryID *uint  `json:"category_id"`
}

func (s *CatalogService) CreateNotesTemplate(ctx context.Context, in NotesTemplateInput) (*models.RepairNotesTemplate, error) {
	utils.Normalize(&in)
	t := models.RepairNotesTemplate{Name: in.Name, Body: in.Body, CategoryID: in.CategoryID}
	if err := s.conn(ctx).Create(&t).Error; err != nil {
		return nil, fmt.Errorf("create notes template: %w", err)
	}
	return &t, nil
}

// Unit loads a unit with its device for display.
func (s *CatalogService) Unit(ctx context.Context, id uint) (*models.DeviceUnit, error) {
	var u models.DeviceUnit
	err := s.conn(ctx).Preload("Device.Brand").First(&u, id).Error
	if err != nil {
		return nil, notFound(err, "device unit")
	}
	return &u, nil
}
