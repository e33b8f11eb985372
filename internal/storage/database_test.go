package storage_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/model"
	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/storage"
	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/testutil"
)

const (
	testUnsupportedDriverName        = "unsupported-driver"
	testUnsupportedDriverDescription = "unsupported driver"
	testMissingDriverDescription     = "missing driver"
	testMissingDataSourceDescription = "missing data source"
	testInquiryEmailValue            = "buyer@example.com"
	testInquiryMessageValue          = "Quote please"
)

func TestOpenDatabaseWithSQLiteConfiguration(testingT *testing.T) {
	sqliteDatabase := testutil.NewSQLiteTestDatabase(testingT)

	database, openErr := storage.OpenDatabase(sqliteDatabase.Configuration())
	require.NoError(testingT, openErr)
	database = testutil.ConfigureDatabaseLogger(testingT, database)
	require.NotNil(testingT, database)

	require.NoError(testingT, storage.AutoMigrate(database))
	require.NoError(testingT, storage.Ping(database))

	inquiry := model.Inquiry{
		ID:      storage.NewID(),
		Title:   model.InquiryTitleDefault,
		Email:   testInquiryEmailValue,
		Message: testInquiryMessageValue,
	}
	require.NoError(testingT, database.Create(&inquiry).Error)

	var fetched model.Inquiry
	require.NoError(testingT, database.First(&fetched, "id = ?", inquiry.ID).Error)
	require.Equal(testingT, testInquiryEmailValue, fetched.Email)
}

func TestOpenDatabaseAcceptsDriverNameInAnyCase(testingT *testing.T) {
	sqliteDatabase := testutil.NewSQLiteTestDatabase(testingT)
	configuration := sqliteDatabase.Configuration()
	configuration.DriverName = " SQLite "

	database, openErr := storage.OpenDatabase(configuration)
	require.NoError(testingT, openErr)
	require.NotNil(testingT, database)
}

func TestAutoMigrateCreatesTablesAndLeavesRowsUntouched(testingT *testing.T) {
	database := testutil.NewMigratedDatabase(testingT)
	require.True(testingT, database.Migrator().HasTable(&model.Inquiry{}))
	require.True(testingT, database.Migrator().HasTable(&model.Settings{}))

	untitled := model.Inquiry{
		ID:      storage.NewID(),
		Email:   testInquiryEmailValue,
		Message: testInquiryMessageValue,
	}
	require.NoError(testingT, database.Create(&untitled).Error)

	require.NoError(testingT, storage.AutoMigrate(database))

	var refreshed model.Inquiry
	require.NoError(testingT, database.First(&refreshed, "id = ?", untitled.ID).Error)
	require.Empty(testingT, refreshed.Title)
	require.Equal(testingT, testInquiryMessageValue, refreshed.Message)
}

func TestOpenDatabaseValidation(testingT *testing.T) {
	sqliteDatabase := testutil.NewSQLiteTestDatabase(testingT)

	testCases := []struct {
		name              string
		configuration     storage.Config
		expectedRootError error
	}{
		{
			name: testMissingDriverDescription,
			configuration: storage.Config{
				DriverName:     "",
				DataSourceName: sqliteDatabase.DataSourceName(),
			},
			expectedRootError: storage.ErrMissingDatabaseDriverName,
		},
		{
			name: testUnsupportedDriverDescription,
			configuration: storage.Config{
				DriverName:     testUnsupportedDriverName,
				DataSourceName: sqliteDatabase.DataSourceName(),
			},
			expectedRootError: storage.ErrUnsupportedDatabaseDriver,
		},
		{
			name: testMissingDataSourceDescription,
			configuration: storage.Config{
				DriverName:     storage.DriverNamePostgres,
				DataSourceName: "  ",
			},
			expectedRootError: storage.ErrMissingDataSourceName,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testingT.Run(testCase.name, func(subTestingT *testing.T) {
			_, openErr := storage.OpenDatabase(testCase.configuration)
			require.Error(subTestingT, openErr)
			require.True(subTestingT, errors.Is(openErr, testCase.expectedRootError))
		})
	}
}
