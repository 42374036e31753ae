package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type uploadForm struct {
	ImportType string `form:"import_type" validate:"required,import_type"`
	FileName   string `json:"file_name" validate:"required,max=12"`
}

type listQuery struct {
	Status string `form:"status" validate:"omitempty,job_status"`
	Format string `form:"format" validate:"omitempty,template_format"`
}

func TestValidator_CustomTags(t *testing.T) {
	v := New()

	assert.NoError(t, v.Validate(uploadForm{ImportType: "combined", FileName: "book.xlsx"}))
	assert.NoError(t, v.Validate(listQuery{Status: "validated", Format: "csv"}))
	assert.NoError(t, v.Validate(listQuery{}))

	err := v.Validate(uploadForm{ImportType: "vendor", FileName: "portfolio-2024.xlsx"})
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 2)
	assert.Equal(t, "import_type", verrs[0].Field)
	assert.Equal(t, "import_type", verrs[0].Rule)
	assert.Equal(t, "file_name", verrs[1].Field)
	assert.Equal(t, "max", verrs[1].Rule)

	err = v.Validate(listQuery{Status: "archived", Format: "pdf"})
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "status", verrs[0].Field)
	assert.Equal(t, "format", verrs[1].Field)
}

func TestValidator_Var(t *testing.T) {
	v := New()

	assert.NoError(t, v.Var("lease", "import_type"))
	assert.Error(t, v.Var("leases", "import_type"))
	assert.Error(t, v.Var("not-an-email", "email"))
}
