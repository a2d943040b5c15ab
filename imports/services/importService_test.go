package services

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"boleto-import-backend/db/models"
	"boleto-import-backend/imports/repositories"
	"boleto-import-backend/internal/testutil"
	"boleto-import-backend/utils"
	"boleto-import-backend/utils/pagination"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: ImportQueue}, nil
}

type serviceFixture struct {
	service   *ImportService
	repo      *testutil.MemoryImportRepository
	enqueuer  *fakeEnqueuer
	uploadDir string
}

func newServiceFixture(t *testing.T, maxRows int) *serviceFixture {
	t.Helper()
	repo := testutil.NewMemoryImportRepository()
	enqueuer := &fakeEnqueuer{}
	uploadDir := t.TempDir()
	service := NewImportService(repo, utils.NewLocalFileStorage(uploadDir), enqueuer, ImportServiceConfig{
		MaxRows:     maxRows,
		APIBaseURL:  "https://api.test",
		ReportsDir:  t.TempDir(),
		TaskRetries: 3,
	}, zap.NewNop())
	return &serviceFixture{service: service, repo: repo, enqueuer: enqueuer, uploadDir: uploadDir}
}

func (f *serviceFixture) uploads(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(f.uploadDir)
	require.NoError(t, err)
	return entries
}

func (f *serviceFixture) lastImportUpdate() map[string]interface{} {
	if len(f.repo.ImportUpdates) == 0 {
		return nil
	}
	return f.repo.ImportUpdates[len(f.repo.ImportUpdates)-1]
}

func TestImportService_CreateImport(t *testing.T) {
	f := newServiceFixture(t, 100)

	result, err := f.service.CreateImport(context.Background(), CreateImportInput{
		Filename:    "Boletos Dezembro.csv",
		Content:     strings.NewReader(sampleCSV),
		WebhookURL:  " https://hooks.test/imports ",
		NotifyEmail: "Financeiro <financeiro@exemplo.com>",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusQueued, result.Status)

	imp, err := f.repo.GetImport(context.Background(), result.ImportID)
	require.NoError(t, err)
	assert.Equal(t, "Boletos Dezembro.csv", imp.OriginalFilename)
	assert.Equal(t, 2, imp.TotalRows)
	assert.Equal(t, "default", imp.OwnerID)
	assert.Len(t, imp.FileHash, 64)
	require.NotNil(t, imp.WebhookURL)
	assert.Equal(t, "https://hooks.test/imports", *imp.WebhookURL)
	require.NotNil(t, imp.NotifyEmail)
	assert.Equal(t, "financeiro@exemplo.com", *imp.NotifyEmail)

	rows := f.repo.Rows(result.ImportID)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].RowNumber)
	assert.Equal(t, int64(1550), rows[0].Amount)
	assert.Equal(t, "11222333000181", rows[0].Document)
	assert.Equal(t, "2024-12-31", rows[0].DueDate)
	assert.Equal(t, models.RowStatusPending, rows[0].Status)
	assert.Equal(t, "2025-01-15", rows[1].DueDate)

	companies := f.repo.Companies()
	assert.Len(t, companies, 2)
	assert.Equal(t, "Bela Vista", companies["11444777000161"].District)

	require.Len(t, f.enqueuer.tasks, 1)
	assert.Equal(t, TypeProcessImport, f.enqueuer.tasks[0].Type())
	var payload ProcessImportPayload
	require.NoError(t, json.Unmarshal(f.enqueuer.tasks[0].Payload(), &payload))
	assert.Equal(t, result.ImportID.String(), payload.ImportID)

	uploads := f.uploads(t)
	require.Len(t, uploads, 1)
	assert.True(t, strings.HasSuffix(uploads[0].Name(), "_Boletos_Dezembro.csv"))
}

func TestImportService_CreateImport_RejectsInvalidRows(t *testing.T) {
	f := newServiceFixture(t, 100)
	content := "nome,cnpj,endereco,numero,bairro,estado,cep,valor,vencimento\n" +
		"Empresa A,11222333000181,Rua A,10,Centro,SP,01310100,15.50,31/12/2024\n" +
		"Empresa B,11222333000182,Rua B,20,Centro,SP,01310100,15.50,31/12/2024\n" +
		"Empresa C,11444777000161,Rua C,30,Centro,SP,01310100,abc,31/12/2024\n"

	_, err := f.service.CreateImport(context.Background(), CreateImportInput{
		Filename: "boletos.csv",
		Content:  strings.NewReader(content),
	})

	var validationErr *ImportValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, []string{
		"Row 2: invalid CNPJ",
		"Row 3: invalid amount",
	}, validationErr.Messages())

	assert.Empty(t, f.enqueuer.tasks)
	assert.Empty(t, f.repo.Companies())
	assert.Empty(t, f.uploads(t))
}

func TestImportService_CreateImport_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		input   CreateImportInput
		maxRows int
		want    error
	}{
		{
			name:  "missing file",
			input: CreateImportInput{},
			want:  ErrMissingUploadedFile,
		},
		{
			name:  "unsupported extension",
			input: CreateImportInput{Filename: "boletos.txt", Content: strings.NewReader(sampleCSV)},
			want:  ErrUnsupportedFileFormat,
		},
		{
			name:  "legacy excel",
			input: CreateImportInput{Filename: "boletos.xls", Content: strings.NewReader(sampleCSV)},
			want:  ErrUnsupportedFileFormat,
		},
		{
			name:  "header only",
			input: CreateImportInput{Filename: "boletos.csv", Content: strings.NewReader("nome,cnpj\n")},
			want:  ErrEmptyFile,
		},
		{
			name:    "too many rows",
			input:   CreateImportInput{Filename: "boletos.csv", Content: strings.NewReader(sampleCSV)},
			maxRows: 1,
			want:    ErrTooManyRows,
		},
		{
			name:  "relative webhook",
			input: CreateImportInput{Filename: "boletos.csv", Content: strings.NewReader(sampleCSV), WebhookURL: "/hooks"},
			want:  ErrInvalidWebhookURL,
		},
		{
			name:  "ftp webhook",
			input: CreateImportInput{Filename: "boletos.csv", Content: strings.NewReader(sampleCSV), WebhookURL: "ftp://hooks.test"},
			want:  ErrInvalidWebhookURL,
		},
		{
			name:  "bad email",
			input: CreateImportInput{Filename: "boletos.csv", Content: strings.NewReader(sampleCSV), NotifyEmail: "financeiro"},
			want:  ErrInvalidNotifyEmail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			maxRows := tt.maxRows
			if maxRows == 0 {
				maxRows = 100
			}
			f := newServiceFixture(t, maxRows)

			_, err := f.service.CreateImport(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, f.enqueuer.tasks)
			assert.Empty(t, f.uploads(t))
		})
	}
}

func TestImportService_CreateImport_EnqueueFailureFailsImport(t *testing.T) {
	f := newServiceFixture(t, 100)
	f.enqueuer.err = errors.New("redis: connection refused")

	_, err := f.service.CreateImport(context.Background(), CreateImportInput{
		Filename: "boletos.csv",
		Content:  strings.NewReader(sampleCSV),
	})
	assert.ErrorIs(t, err, f.enqueuer.err)

	update := f.lastImportUpdate()
	require.NotNil(t, update)
	assert.Equal(t, models.ImportStatusFailed, update["status"])
	assert.Contains(t, update, "finished_at")
}

func TestImportService_GetImportStatus(t *testing.T) {
	f := newServiceFixture(t, 100)
	imp := f.repo.SeedImport(nil, 1000, 2000)

	view, err := f.service.GetImportStatus(context.Background(), imp.ID)
	require.NoError(t, err)
	assert.Equal(t, imp.ID, view.ID)
	assert.Equal(t, models.ImportStatusQueued, view.Status)
	assert.Equal(t, "seed.csv", view.Filename)
	assert.Equal(t, ImportStats{Total: 2}, view.Stats)
	assert.Nil(t, view.StartedAt)
	assert.Equal(t, "https://api.test/v1/imports/"+imp.ID.String()+"/results.csv", view.Links.Results)
	assert.Equal(t, "https://api.test/v1/imports/"+imp.ID.String()+"/errors.csv", view.Links.Errors)

	_, err = f.service.GetImportStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repositories.ErrImportNotFound)
}

// finishRows marks the first row success with a transaction and the second as an error
func finishRows(t *testing.T, repo *testutil.MemoryImportRepository, imp *models.Import) {
	t.Helper()
	ctx := context.Background()
	rows := repo.Rows(imp.ID)
	require.Len(t, rows, 2)

	require.NoError(t, repo.CreateTransaction(ctx, &models.Transaction{
		ImportRowID:   rows[0].ID,
		IDTransaction: "tx-1",
		BoletoURL:     "https://boletos.test/1",
		BoletoCode:    "23790000",
	}))
	require.NoError(t, repo.UpdateRowStatus(ctx, rows[0].ID, models.RowStatusSuccess, nil))
	require.NoError(t, repo.UpdateRowStatus(ctx, rows[1].ID, models.RowStatusError, map[string]interface{}{
		"error_code":    "400",
		"error_message": "OlympiaBank API error: invalid document",
	}))
}

func TestImportService_ResultsCSV(t *testing.T) {
	f := newServiceFixture(t, 100)
	imp := f.repo.SeedImport(nil, 1550, 2000)
	finishRows(t, f.repo, imp)

	data, err := f.service.ResultsCSV(context.Background(), imp.ID)
	require.NoError(t, err)
	assert.Equal(t,
		"row_number,name,document,amount,boleto_url,boleto_code,transaction_id\n"+
			"1,Empresa 1,11222333000181,15.5,https://boletos.test/1,23790000,tx-1\n",
		string(data))
}

func TestImportService_ErrorsCSV(t *testing.T) {
	f := newServiceFixture(t, 100)
	imp := f.repo.SeedImport(nil, 1550, 2000)

	data, err := f.service.ErrorsCSV(context.Background(), imp.ID)
	require.NoError(t, err)
	assert.Equal(t, "row_number,name,document,amount,error_code,error_message\n", string(data))

	finishRows(t, f.repo, imp)
	data, err = f.service.ErrorsCSV(context.Background(), imp.ID)
	require.NoError(t, err)
	assert.Equal(t,
		"row_number,name,document,amount,error_code,error_message\n"+
			"2,Empresa 2,11222333000181,20,400,OlympiaBank API error: invalid document\n",
		string(data))

	_, err = f.service.ErrorsCSV(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repositories.ErrImportNotFound)
}

func TestImportService_ErrorsXLSX(t *testing.T) {
	f := newServiceFixture(t, 100)
	imp := f.repo.SeedImport(nil, 1550, 2050)
	finishRows(t, f.repo, imp)

	path, err := f.service.ErrorsXLSX(context.Background(), imp.ID)
	require.NoError(t, err)

	workbook, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer workbook.Close()

	rows, err := workbook.GetRows("Sheet1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, errorsCSVHeader, rows[0])
	assert.Equal(t, []string{"2", "Empresa 2", "11222333000181", "20.5", "400", "OlympiaBank API error: invalid document"}, rows[1])
}

func TestImportService_GetProgress(t *testing.T) {
	f := newServiceFixture(t, 100)
	imp := f.repo.SeedImport(nil, 1550)

	event, err := f.service.GetProgress(context.Background(), imp.ID)
	require.NoError(t, err)
	assert.Equal(t, ProgressEvent{
		ImportID: imp.ID.String(),
		Status:   models.ImportStatusQueued,
		Progress: ProgressCounts{Total: 1},
	}, event)
}

func TestMajorUnits(t *testing.T) {
	assert.Equal(t, "15.5", MajorUnits(1550))
	assert.Equal(t, "20", MajorUnits(2000))
	assert.Equal(t, "0.05", MajorUnits(5))
}

func TestImportService_ListImports(t *testing.T) {
	f := newServiceFixture(t, 100)
	base := time.Date(2024, 12, 1, 12, 0, 0, 0, time.UTC)

	first := f.repo.SeedImport(nil, 100)
	second := f.repo.SeedImport(nil, 200)
	third := f.repo.SeedImport(nil, 300)
	f.repo.SetCreatedAt(first.ID, base)
	f.repo.SetCreatedAt(second.ID, base.Add(24*time.Hour))
	f.repo.SetCreatedAt(third.ID, base.Add(48*time.Hour))
	require.NoError(t, f.repo.UpdateImport(context.Background(), second.ID, map[string]interface{}{"status": models.ImportStatusCompleted}))

	views, total, err := f.service.ListImports(context.Background(), pagination.PaginationParams{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, views, 2)
	assert.Equal(t, third.ID, views[0].ID)
	assert.Equal(t, second.ID, views[1].ID)

	views, total, err = f.service.ListImports(context.Background(), pagination.PaginationParams{
		Page: 1, PageSize: 10, Filters: map[string]string{"status": "completed"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, second.ID, views[0].ID)

	views, _, err = f.service.ListImports(context.Background(), pagination.PaginationParams{
		Page: 1, PageSize: 10, Filters: map[string]string{"start_date": "2024-12-01", "end_date": "2024-12-02"},
	})
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, second.ID, views[0].ID)
	assert.Equal(t, first.ID, views[1].ID)
}

func TestImportService_ListImports_InvalidFilters(t *testing.T) {
	f := newServiceFixture(t, 100)

	for _, filters := range []map[string]string{
		{"status": "done"},
		{"start_date": "01/12/2024"},
		{"end_date": "yesterday"},
	} {
		_, _, err := f.service.ListImports(context.Background(), pagination.PaginationParams{Page: 1, PageSize: 10, Filters: filters})
		assert.ErrorIs(t, err, ErrInvalidListFilter)
	}
}
