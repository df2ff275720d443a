package services

import (
	"fmt"
	"testing"

	"atelier-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryTree(t *testing.T) {
	f := newFixture(t)
	svc := NewCatalogService(f.deps)

	audio, err := svc.CreateCategory(f.ctx, CategoryInput{Name: " Audio "})
	require.NoError(t, err)
	amps, err := svc.CreateCategory(f.ctx, CategoryInput{Name: "Amplifiers", ParentID: &audio.ID})
	require.NoError(t, err)
	tubes, err := svc.CreateCategory(f.ctx, CategoryInput{Name: "Tube", ParentID: &amps.ID})
	require.NoError(t, err)
	video, err := svc.CreateCategory(f.ctx, CategoryInput{Name: "Video"})
	require.NoError(t, err)

	assert.Equal(t, "Audio", audio.Name)
	assert.Equal(t, "Audio / Amplifiers / Tube", tubes.CompleteName)
	assert.Equal(t, fmt.Sprintf("%d/%d/%d/", audio.ID, amps.ID, tubes.ID), tubes.ParentPath)
	assert.Equal(t, []uint{audio.ID, amps.ID, tubes.ID}, AncestorIDs(tubes.ParentPath))

	ids, err := svc.SubtreeIDs(f.ctx, audio.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{audio.ID, amps.ID, tubes.ID}, ids)
	assert.NotContains(t, ids, video.ID)

	_, err = svc.CreateCategory(f.ctx, CategoryInput{Name: "Orphan", ParentID: ptr(uint(999))})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDevicesAndReclassify(t *testing.T) {
	f := newFixture(t)
	svc := NewCatalogService(f.deps)
	audio, err := svc.CreateCategory(f.ctx, CategoryInput{Name: "Audio"})
	require.NoError(t, err)
	amps, err := svc.CreateCategory(f.ctx, CategoryInput{Name: "Amplifiers", ParentID: &audio.ID})
	require.NoError(t, err)

	_, err = svc.CreateBrand(f.ctx, BrandInput{Name: "Marantz"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	dev, err := svc.CreateDevice(f.ctx, DeviceInput{Name: "PM7000", BrandID: &f.brand.ID, CategoryID: &amps.ID, Variants: []string{"Silver", " ", "Black"}})
	require.NoError(t, err)
	assert.Len(t, dev.Variants, 2)

	_, err = svc.CreateDevice(f.ctx, DeviceInput{Name: "PM7000", BrandID: &f.brand.ID})
	require.ErrorAs(t, err, &verr)

	listed, err := svc.ListDevices(f.ctx, audio.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "PM7000", listed[0].Name)
	assert.Equal(t, "Marantz", listed[0].Brand.Name)

	n, err := svc.Reclassify(f.ctx, ReclassifyInput{DeviceIDs: []uint{f.device.ID, f.device.ID}, CategoryID: amps.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	listed, err = svc.ListDevices(f.ctx, amps.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	all, err := svc.ListDevices(f.ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCreateUnit(t *testing.T) {
	f := newFixture(t)
	svc := NewCatalogService(f.deps)

	u, err := svc.CreateUnit(f.ctx, UnitInput{DeviceID: f.device.ID, VariantID: &f.variant.ID, SerialNumber: ptr(" 123 "), PartnerID: &f.partner.ID})
	require.NoError(t, err)
	assert.Equal(t, "123", u.Serial())
	assert.Equal(t, models.FunctionalBroken, u.FunctionalState)
	assert.Equal(t, models.StockClient, u.StockState)

	var verr *ValidationError
	_, err = svc.CreateUnit(f.ctx, UnitInput{DeviceID: f.device.ID, SerialNumber: ptr("123")})
	require.ErrorAs(t, err, &verr)

	// units without serial never collide
	_, err = svc.CreateUnit(f.ctx, UnitInput{DeviceID: f.device.ID, SerialNumber: ptr("  ")})
	require.NoError(t, err)
	_, err = svc.CreateUnit(f.ctx, UnitInput{DeviceID: f.device.ID})
	require.NoError(t, err)

	other := models.Device{Name: "CD6007"}
	require.NoError(t, f.db.Create(&other).Error)
	_, err = svc.CreateUnit(f.ctx, UnitInput{DeviceID: other.ID, VariantID: &f.variant.ID})
	require.ErrorAs(t, err, &verr)

	loaded, err := svc.Unit(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Marantz PM6006", loaded.Device.DisplayName())
}

func TestTagsScopedToCategories(t *testing.T) {
	f := newFixture(t)
	svc := NewCatalogService(f.deps)
	audio, err := svc.CreateCategory(f.ctx, CategoryInput{Name: "Audio"})
	require.NoError(t, err)
	amps, err := svc.CreateCategory(f.ctx, CategoryInput{Name: "Amplifiers", ParentID: &audio.ID})
	require.NoError(t, err)
	turntables, err := svc.CreateCategory(f.ctx, CategoryInput{Name: "Turntables"})
	require.NoError(t, err)

	_, created, err := svc.CreateTag(f.ctx, TagInput{Name: "Dirty contacts", IsGlobal: true})
	require.NoError(t, err)
	assert.True(t, created)
	hum, created, err := svc.CreateTag(f.ctx, TagInput{Name: "Hum", CategoryIDs: []uint{audio.ID}})
	require.NoError(t, err)
	assert.True(t, created)
	_, _, err = svc.CreateTag(f.ctx, TagInput{Name: "Belt", CategoryIDs: []uint{turntables.ID}})
	require.NoError(t, err)

	again, created, err := svc.CreateTag(f.ctx, TagInput{Name: "HUM", CategoryIDs: []uint{turntables.ID}})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, hum.ID, again.ID)

	names := func(tags []models.RepairTag) []string {
		out := make([]string, len(tags))
		for i, tag := range tags {
			out[i] = tag.Name
		}
		return out
	}

	tags, err := svc.TagsForCategory(f.ctx, amps.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Dirty contacts", "Hum"}, names(tags))

	tags, err = svc.TagsForCategory(f.ctx, turntables.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Belt", "Dirty contacts", "Hum"}, names(tags))

	tags, err = svc.TagsForCategory(f.ctx, amps.ID, "hu")
	require.NoError(t, err)
	assert.Equal(t, []string{"Hum"}, names(tags))

	tags, err = svc.TagsForCategory(f.ctx, 0, "")
	require.NoError(t, err)
	assert.Len(t, tags, 3)
}

func TestCreateNotesTemplate(t *testing.T) {
	f := newFixture(t)
	svc := NewCatalogService(f.deps)
	tpl, err := svc.CreateNotesTemplate(f.ctx, NotesTemplateInput{Name: " Amp ", Body: "Check bias\n"})
	require.NoError(t, err)
	assert.Equal(t, "Amp", tpl.Name)
	assert.Equal(t, "Check bias", tpl.Body)
}
