package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, []string{"id", "job_id"}, [][]string{{"a", "J1"}, {"long-id", "J2"}}))
	assert.Equal(t, "ID       JOB_ID\na        J1\nlong-id  J2\n", buf.String())
}

func TestPrintDetail(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintDetail(&buf, []string{"id", "depends_on"}, map[string]string{"id": "a", "depends_on": "-"}))
	assert.Equal(t, "id:          a\ndepends_on:  -\n", buf.String())
}

func TestOptionalHelpers(t *testing.T) {
	empty, value := "", "v"
	ts := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, "-", optional(nil))
	assert.Equal(t, "-", optional(&empty))
	assert.Equal(t, "v", optional(&value))
	assert.Equal(t, "-", optionalTime(nil))
	assert.Equal(t, "2024-05-01T09:00:00Z", optionalTime(&ts))
	assert.Equal(t, "-", joinOrDash(nil))
	assert.Equal(t, "T,U", joinOrDash([]string{"T", "U"}))
}

func TestValidateOutputFormat(t *testing.T) {
	for _, ok := range []string{"", "table", "json"} {
		assert.NoError(t, validateOutputFormat(ok), ok)
	}
	assert.Error(t, validateOutputFormat("yaml"))
}
