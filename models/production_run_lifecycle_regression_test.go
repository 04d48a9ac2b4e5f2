package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pipeworks/factory_backend/config"
	"github.com/pipeworks/factory_backend/models"
	"github.com/pipeworks/factory_backend/utils"
	"github.com/pipeworks/factory_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Regression: the full batch lifecycle against real MySQL/redis.
// Start consumes raw material and locks the mold; curing releases the mold;
// completion fixes goodQty and re-averages the finished good's cost; a
// secondary allocation splits stock into a sibling run. Every quantity must
// replay from the stock movement trail afterwards.
func TestProductionRunLifecycle_EndToEnd(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "factory_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	logger := logrus.New()

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:  "Lifecycle Pipes Co",
		Email: "owner@lifecycle.test",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	ctx = utils.SetBusinessIdInContext(ctx, biz.ID.String())
	ctx = utils.SetUserIdInContext(ctx, 1)
	businessID := biz.ID.String()
	db := config.GetDB()

	cement, err := models.CreateInventoryItem(ctx, &models.NewInventoryItem{
		Name:      "Cement OPC 53",
		Category:  "Cement",
		Quantity:  decimal.NewFromInt(200),
		Unit:      "Kg",
		CostPrice: decimal.NewFromInt(8),
	})
	if err != nil {
		t.Fatalf("CreateInventoryItem: %v", err)
	}

	mold, err := models.CreateMoldResource(ctx, &models.NewMoldResource{MoldNumber: "M1"})
	if err != nil {
		t.Fatalf("CreateMoldResource: %v", err)
	}
	curingYard, err := models.CreateStorageLocation(ctx, &models.NewStorageLocation{Name: "Curing Yard", Type: "Curing"})
	if err != nil {
		t.Fatalf("CreateStorageLocation: %v", err)
	}

	pipeMaster, err := models.CreateProductMaster(ctx, &models.NewProductMaster{
		Name:     "RCC NP2 300mm",
		Category: "RCC Pipes",
	})
	if err != nil {
		t.Fatalf("CreateProductMaster (pipe): %v", err)
	}
	septicMaster, err := models.CreateProductMaster(ctx, &models.NewProductMaster{
		Name:     "Septic Tank 1000L",
		Category: "Septic Tank Products",
	})
	if err != nil {
		t.Fatalf("CreateProductMaster (septic): %v", err)
	}

	// --- Start: consume 50kg cement, lock M1, replay-safe on the request id.
	startInput := &workflow.StartRunInput{
		ProductMasterId:  pipeMaster.ID,
		QuantityProduced: decimal.NewFromInt(100),
		MoldId:           &mold.ID,
		LabourCost:       decimal.NewFromInt(300),
		PowerCost:        decimal.NewFromInt(200),
		Ingredients: []workflow.IngredientInput{
			{RawMaterialId: cement.ID, Quantity: decimal.NewFromInt(50)},
		},
		RequestId: "start-req-1",
	}
	run, err := workflow.StartRun(ctx, logger, startInput)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if run.Status != models.RunStatusStarted {
		t.Fatalf("run status = %q, want %q", run.Status, models.RunStatusStarted)
	}
	if run.BatchId != "BATCH-0001" {
		t.Fatalf("batch id = %q, want BATCH-0001", run.BatchId)
	}
	if len(run.Ingredients) != 1 || !run.Ingredients[0].UnitCost.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("ingredient snapshot = %+v, want 1 entry at unit cost 8", run.Ingredients)
	}
	assertItemQty(t, db, cement.ID, "150")
	assertMoldStatus(t, db, mold.ID, models.MoldStatusInProduction)

	// Same request id replays: same run, cement not consumed twice.
	replayed, err := workflow.StartRun(ctx, logger, startInput)
	if err != nil {
		t.Fatalf("StartRun replay: %v", err)
	}
	if replayed.ID != run.ID {
		t.Fatalf("replay returned run %d, want %d", replayed.ID, run.ID)
	}
	assertItemQty(t, db, cement.ID, "150")

	// A second run on the same mold is refused and fully rolled back.
	_, err = workflow.StartRun(ctx, logger, &workflow.StartRunInput{
		ProductMasterId:  pipeMaster.ID,
		QuantityProduced: decimal.NewFromInt(10),
		MoldId:           &mold.ID,
		Ingredients: []workflow.IngredientInput{
			{RawMaterialId: cement.ID, Quantity: decimal.NewFromInt(5)},
		},
	})
	if !errors.Is(err, workflow.ErrResourceUnavailable) {
		t.Fatalf("expected ErrResourceUnavailable, got %v", err)
	}
	assertItemQty(t, db, cement.ID, "150")

	// Consuming more than on hand is refused.
	_, err = workflow.StartRun(ctx, logger, &workflow.StartRunInput{
		ProductMasterId:  pipeMaster.ID,
		QuantityProduced: decimal.NewFromInt(10),
		Ingredients: []workflow.IngredientInput{
			{RawMaterialId: cement.ID, Quantity: decimal.NewFromInt(10000)},
		},
	})
	if !errors.Is(err, workflow.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// --- Curing: releases the mold.
	run, err = workflow.MoveRunToCuring(ctx, logger, run.ID, &workflow.MoveToCuringInput{
		CuringLocationId: curingYard.ID,
	})
	if err != nil {
		t.Fatalf("MoveRunToCuring: %v", err)
	}
	if run.Status != models.RunStatusOnCuring {
		t.Fatalf("run status = %q, want %q", run.Status, models.RunStatusOnCuring)
	}
	if !run.CuringQty.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("curing qty = %s, want 100", run.CuringQty)
	}
	assertMoldStatus(t, db, mold.ID, models.MoldStatusAvailable)

	// --- Complete: passed 100, damaged 5 → goodQty 95 credited at cost 900/100.
	run, err = workflow.CompleteRunCuring(ctx, logger, run.ID, &workflow.CompleteCuringInput{
		PassedQty:  decimal.NewFromInt(100),
		DamagedQty: decimal.NewFromInt(5),
	})
	if err != nil {
		t.Fatalf("CompleteRunCuring: %v", err)
	}
	if run.Status != models.RunStatusCompleted {
		t.Fatalf("run status = %q, want %q", run.Status, models.RunStatusCompleted)
	}
	if !run.GoodQty.Equal(decimal.NewFromInt(95)) {
		t.Fatalf("good qty = %s, want 95", run.GoodQty)
	}
	if !run.SellableQty.Equal(decimal.NewFromInt(95)) {
		t.Fatalf("sellable qty = %s, want 95", run.SellableQty)
	}
	// batch cost = 50*8 + 300 + 200
	if !run.BatchCost.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("batch cost = %s, want 900", run.BatchCost)
	}

	var finishedGood models.InventoryItem
	if err := db.First(&finishedGood, run.FinishedGoodId).Error; err != nil {
		t.Fatalf("fetch finished good: %v", err)
	}
	if !finishedGood.Quantity.Equal(decimal.NewFromInt(95)) {
		t.Fatalf("finished good stock = %s, want 95", finishedGood.Quantity)
	}
	if !finishedGood.CostPrice.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("finished good cost = %s, want 9 (900 over 100 produced)", finishedGood.CostPrice)
	}

	// Completing again is terminal.
	_, err = workflow.CompleteRunCuring(ctx, logger, run.ID, &workflow.CompleteCuringInput{
		PassedQty: decimal.NewFromInt(100),
	})
	if !errors.Is(err, workflow.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}

	// --- Allocation: divert 20 pipes into the septic line.
	run, err = workflow.AllocateSecondary(ctx, logger, run.ID, &workflow.AllocateSecondaryInput{
		RequestedQty:          decimal.NewFromInt(20),
		SepticProductMasterId: septicMaster.ID,
	})
	if err != nil {
		t.Fatalf("AllocateSecondary: %v", err)
	}
	if !run.InternalUseQty.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("internal use qty = %s, want 20", run.InternalUseQty)
	}
	if !run.SellableQty.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("sellable qty = %s, want 75", run.SellableQty)
	}
	assertItemQty(t, db, run.FinishedGoodId, "75")

	var sibling models.ProductionRun
	if err := db.Where("business_id = ? AND source_run_id = ?", businessID, run.ID).First(&sibling).Error; err != nil {
		t.Fatalf("expected sibling run: %v", err)
	}
	if sibling.Status != models.RunStatusCompleted {
		t.Fatalf("sibling status = %q, want %q", sibling.Status, models.RunStatusCompleted)
	}
	if sibling.BatchId != "SEPTIC-0001" {
		t.Fatalf("sibling batch id = %q, want SEPTIC-0001", sibling.BatchId)
	}
	if !sibling.QuantityProduced.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("sibling quantity = %s, want 20", sibling.QuantityProduced)
	}
	assertItemQty(t, db, sibling.FinishedGoodId, "20")

	// --- Supply: 100kg at 10 blends the cement cost to (150*8+1000)/250.
	if _, err := workflow.RecordSupply(ctx, logger, &models.NewSupplyRecord{
		ItemId:   cement.ID,
		Quantity: decimal.NewFromInt(100),
		UnitCost: decimal.NewFromInt(10),
	}); err != nil {
		t.Fatalf("RecordSupply: %v", err)
	}
	assertItemQty(t, db, cement.ID, "250")
	var cementAfter models.InventoryItem
	if err := db.First(&cementAfter, cement.ID).Error; err != nil {
		t.Fatalf("fetch cement: %v", err)
	}
	if !cementAfter.CostPrice.Equal(decimal.RequireFromString("8.8")) {
		t.Fatalf("cement cost = %s, want 8.8", cementAfter.CostPrice)
	}

	// --- Every quantity above must replay from the movement trail.
	corrections, err := workflow.RebuildInventoryQuantities(ctx, logger, businessID, true)
	if err != nil {
		t.Fatalf("RebuildInventoryQuantities: %v", err)
	}
	if len(corrections) != 0 {
		t.Fatalf("expected no drift, got %+v", corrections)
	}

	// --- Every transition left a pending outbox event.
	for _, eventType := range []models.ProductionEventType{
		models.EventTypeRunStarted,
		models.EventTypeRunMovedToCuring,
		models.EventTypeRunCompleted,
		models.EventTypeRunAllocated,
	} {
		var count int64
		if err := db.Model(&models.DomainEventRecord{}).
			Where("business_id = ? AND event_type = ? AND run_id = ?", businessID, eventType, run.ID).
			Count(&count).Error; err != nil {
			t.Fatalf("count outbox %s: %v", eventType, err)
		}
		if count != 1 {
			t.Fatalf("outbox %s: %d records, want 1", eventType, count)
		}
	}

	// --- Completing straight from Started (curing skipped) frees the mold.
	directRun, err := workflow.StartRun(ctx, logger, &workflow.StartRunInput{
		ProductMasterId:  pipeMaster.ID,
		QuantityProduced: decimal.NewFromInt(10),
		MoldId:           &mold.ID,
		Ingredients: []workflow.IngredientInput{
			{RawMaterialId: cement.ID, Quantity: decimal.NewFromInt(10)},
		},
	})
	if err != nil {
		t.Fatalf("StartRun (direct completion): %v", err)
	}
	assertMoldStatus(t, db, mold.ID, models.MoldStatusInProduction)
	directRun, err = workflow.CompleteRunCuring(ctx, logger, directRun.ID, &workflow.CompleteCuringInput{
		PassedQty: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("CompleteRunCuring (direct completion): %v", err)
	}
	if directRun.Status != models.RunStatusCompleted {
		t.Fatalf("direct run status = %q, want %q", directRun.Status, models.RunStatusCompleted)
	}
	assertMoldStatus(t, db, mold.ID, models.MoldStatusAvailable)
	assertItemQty(t, db, cement.ID, "240")

	// --- Concurrent duplicate starts on one request id: the ledger moves once.
	type startResult struct {
		run *models.ProductionRun
		err error
	}
	results := make(chan startResult, 2)
	for i := 0; i < 2; i++ {
		go func() {
			r, rerr := workflow.StartRun(ctx, logger, &workflow.StartRunInput{
				ProductMasterId:  pipeMaster.ID,
				QuantityProduced: decimal.NewFromInt(10),
				Ingredients: []workflow.IngredientInput{
					{RawMaterialId: cement.ID, Quantity: decimal.NewFromInt(5)},
				},
				RequestId: "race-start-1",
			})
			results <- startResult{r, rerr}
		}()
	}
	var raceRunId, successes int
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			// The loser may bounce off the business lock or observe the
			// in-flight key; both are surfaced as retryable conflicts.
			if !errors.Is(r.err, workflow.ErrTransientConflict) &&
				!errors.Is(r.err, workflow.ErrIdempotencyInProgress) {
				t.Fatalf("concurrent start failed with unexpected error: %v", r.err)
			}
			continue
		}
		successes++
		if raceRunId == 0 {
			raceRunId = r.run.ID
		} else if r.run.ID != raceRunId {
			t.Fatalf("concurrent starts produced two runs: %d and %d", raceRunId, r.run.ID)
		}
	}
	if successes == 0 {
		t.Fatal("expected at least one concurrent start to succeed")
	}
	assertItemQty(t, db, cement.ID, "235")

	// --- The trail still replays cleanly after all of the above.
	corrections, err = workflow.RebuildInventoryQuantities(ctx, logger, businessID, true)
	if err != nil {
		t.Fatalf("RebuildInventoryQuantities (final): %v", err)
	}
	if len(corrections) != 0 {
		t.Fatalf("expected no drift after full lifecycle, got %+v", corrections)
	}
}

func assertItemQty(t *testing.T, db *gorm.DB, itemID int, want string) {
	t.Helper()
	var item models.InventoryItem
	if err := db.First(&item, itemID).Error; err != nil {
		t.Fatalf("fetch item %d: %v", itemID, err)
	}
	if !item.Quantity.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("item %d (%s) quantity = %s, want %s", itemID, item.Name, item.Quantity, want)
	}
}

func assertMoldStatus(t *testing.T, db *gorm.DB, moldID int, want models.MoldStatus) {
	t.Helper()
	var mold models.MoldResource
	if err := db.First(&mold, moldID).Error; err != nil {
		t.Fatalf("fetch mold %d: %v", moldID, err)
	}
	if mold.Status != want {
		t.Fatalf("mold %d status = %q, want %q", moldID, mold.Status, want)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("factory-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("factory-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=factory_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
