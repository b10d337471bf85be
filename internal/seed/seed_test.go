package seed

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
)

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func TestPlan(t *testing.T) {
	ds := Plan(12, now)

	if len(ds.Sites) != 12 || len(ds.Documents) != 12 || len(ds.Lots) != 12 || len(ds.Units) != 12 {
		t.Fatalf("sizes = %d/%d/%d/%d", len(ds.Sites), len(ds.Documents), len(ds.Lots), len(ds.Units))
	}
	if len(ds.Menus) != 12*MenuDays {
		t.Errorf("menus = %d, want %d", len(ds.Menus), 12*MenuDays)
	}

	silent, never := 0, 0
	for _, s := range ds.Sites {
		switch {
		case s.LastActivityAt == nil:
			never++
		case now.Sub(*s.LastActivityAt) > 24*time.Hour:
			silent++
		}
	}
	if never != 3 || silent != 3 {
		t.Errorf("never=%d silent=%d, want 3/3", never, silent)
	}

	warm := 0
	for _, u := range ds.Units {
		if u.Reading > 5 {
			warm++
		}
	}
	if warm != 2 {
		t.Errorf("warm units = %d, want 2", warm)
	}

	tiers := map[alert.Tier]int{}
	for _, a := range ds.Assignments {
		tiers[a.Tier]++
	}
	if tiers[alert.TierSiteOperator] != 12 || tiers[alert.TierRegionalSupervisor] != 3 || tiers[alert.TierNationalAdmin] != 1 {
		t.Errorf("tiers = %v", tiers)
	}
}

func TestPlan_Deterministic(t *testing.T) {
	a, b := Plan(5, now), Plan(5, now)
	for i := range a.Lots {
		if !a.Lots[i].ExpiresAt.Equal(b.Lots[i].ExpiresAt) || a.Lots[i].IngredientName != b.Lots[i].IngredientName {
			t.Fatalf("lot %d differs between runs", i)
		}
	}
	if len(Plan(0, now).Assignments) != 0 {
		t.Error("empty plan should have no assignments")
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		reset     bool
		setupMock func(mock sqlmock.Sqlmock)
		wantErr   bool
		errMsg    string
	}{
		{
			name:  "one site with reset",
			reset: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("CREATE TABLE IF NOT EXISTS sites").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec("TRUNCATE storage_readings").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec("INSERT INTO sites").
					WithArgs("site-001", "SPPG Dapur 1", "org-02").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec("INSERT INTO site_daily_activities").WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec("INSERT INTO site_documents").WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec("INSERT INTO ingredient_lots").WillReturnResult(sqlmock.NewResult(0, 1))
				for i := 0; i < MenuDays; i++ {
					mock.ExpectExec("INSERT INTO menu_compliance_days").
						WithArgs("site-001", sqlmock.AnyArg(), true, sqlmock.AnyArg()).
						WillReturnResult(sqlmock.NewResult(0, 1))
				}
				mock.ExpectExec("INSERT INTO storage_units").WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec("INSERT INTO storage_readings").
					WithArgs("unit-001", 3.0, sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec("INSERT INTO user_assignments").
					WithArgs("op-001", "site_operator", "site-001", "").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec("INSERT INTO user_assignments").
					WithArgs("reg-org-02", "regional_supervisor", "", "org-02").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec("INSERT INTO user_assignments").
					WithArgs("admin-001", "national_admin", "", "").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "schema fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("CREATE TABLE IF NOT EXISTS sites").WillReturnError(errors.New("permission denied"))
				mock.ExpectRollback()
			},
			wantErr: true,
			errMsg:  "failed to create upstream schema",
		},
		{
			name: "insert fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("CREATE TABLE IF NOT EXISTS sites").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec("INSERT INTO sites").WillReturnError(errors.New("duplicate key"))
				mock.ExpectRollback()
			},
			wantErr: true,
			errMsg:  "failed to insert into sites",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("Failed to create mock: %v", err)
			}
			defer conn.Close()
			tt.setupMock(mock)

			err = Load(context.Background(), conn, Plan(1, now), tt.reset)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.errMsg)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}
