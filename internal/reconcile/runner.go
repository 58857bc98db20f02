package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"prep-service/internal/model"
)

var ErrAlreadyRunning = errors.New("another vehicle repair is already running")

const (
	preparationsCollection = "preparations"
	vehiclesCollection     = "vehicles"
)

type vehicleDoc struct {
	ID           primitive.ObjectID `bson:"_id"`
	LicensePlate string             `bson:"licensePlate"`
	Brand        string             `bson:"brand"`
	Model        string             `bson:"model"`
	Color        string             `bson:"color,omitempty"`
	Year         int                `bson:"year,omitempty"`
	FuelType     string             `bson:"fuelType,omitempty"`
}

func (d vehicleDoc) toModel() model.Vehicle {
	return model.Vehicle{
		ID:           d.ID.Hex(),
		LicensePlate: d.LicensePlate,
		Brand:        d.Brand,
		Model:        d.Model,
		Color:        d.Color,
		Year:         d.Year,
		FuelType:     d.FuelType,
	}
}

type preparationDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	Vehicle     primitive.ObjectID `bson:"vehicle,omitempty"`
	VehicleData *model.VehicleData `bson:"vehicleData,omitempty"`
}

func (d preparationDoc) toRef() PreparationRef {
	ref := PreparationRef{ID: d.ID.Hex(), VehicleData: d.VehicleData}
	if !d.Vehicle.IsZero() {
		ref.VehicleID = d.Vehicle.Hex()
	}
	return ref
}

type Report struct {
	DryRun    bool
	Started   time.Time
	Duration  time.Duration
	Summary   Summary
	Decisions []Decision
}

// Runner plans a repair for every preparation and applies it. A file lock keeps two runs from overlapping.
type Runner struct {
	db       *mongo.Database
	lockPath string
	log      zerolog.Logger
}

func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		return nil, errors.New("MONGO_URI is required for vehicle repair")
	}
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := mongoClient.Ping(ctx, nil); err != nil {
		_ = mongoClient.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return mongoClient, nil
}

func NewRunner(db *mongo.Database, lockPath string, log zerolog.Logger) *Runner {
	return &Runner{db: db, lockPath: lockPath, log: log}
}

func (r *Runner) Run(ctx context.Context, dryRun bool) (*Report, error) {
	lock := flock.New(r.lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			r.log.Warn().Err(err).Msg("failed to release repair lock")
		}
	}()

	report := &Report{DryRun: dryRun, Started: time.Now()}

	inv, err := r.loadInventory(ctx)
	if err != nil {
		return nil, err
	}

	r.log.Debug().Int("vehicles", inv.Len()).Msg("vehicle inventory loaded")

	refs, err := r.loadPreparations(ctx)
	if err != nil {
		return nil, err
	}

	decisions := Plan(refs, inv)
	report.Summary = Summarize(decisions)
	for _, d := range decisions {
		if d.Action == ActionNone {
			continue
		}
		report.Decisions = append(report.Decisions, d)

		r.log.Debug().
			Str("preparation_id", d.PreparationID).
			Str("vehicle_id", d.VehicleID).
			Str("action", string(d.Action)).
			Str("reason", d.Reason).
			Msg("vehicle repair decision")

		if dryRun || !d.Writes() {
			continue
		}
		if err := r.apply(ctx, d); err != nil {
			return nil, err
		}
	}

	report.Duration = time.Since(report.Started)
	r.log.Info().
		Bool("dry_run", dryRun).
		Int("scanned", report.Summary.Scanned).
		Int("repointed", report.Summary.Repointed).
		Int("refreshed", report.Summary.Refreshed).
		Int("placeholders", report.Summary.Placeholders).
		Dur("duration", report.Duration).
		Msg("vehicle repair finished")

	return report, nil
}

// Every runs the repair on an interval until ctx is done. Overlapping runs are skipped.
func (r *Runner) Every(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Run(ctx, false); err != nil {
				if errors.Is(err, ErrAlreadyRunning) {
					r.log.Debug().Msg("vehicle repair skipped, previous run still active")
					continue
				}
				if ctx.Err() != nil {
					return
				}
				r.log.Error().Err(err).Msg("vehicle repair failed")
			}
		}
	}
}

func (r *Runner) loadInventory(ctx context.Context) (*Inventory, error) {
	cursor, err := r.db.Collection(vehiclesCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("load vehicles: %w", err)
	}
	var docs []vehicleDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("load vehicles: %w", err)
	}

	vehicles := make([]model.Vehicle, 0, len(docs))
	for _, d := range docs {
		vehicles = append(vehicles, d.toModel())
	}
	return NewInventory(vehicles), nil
}

func (r *Runner) loadPreparations(ctx context.Context) ([]PreparationRef, error) {
	cursor, err := r.db.Collection(preparationsCollection).Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"_id": 1, "vehicle": 1, "vehicleData": 1}))
	if err != nil {
		return nil, fmt.Errorf("scan preparations: %w", err)
	}
	defer cursor.Close(ctx)

	var refs []PreparationRef
	for cursor.Next(ctx) {
		var doc preparationDoc
		if err := cursor.Decode(&doc); err != nil {
			r.log.Warn().Err(err).Msg("skipping undecodable preparation")
			continue
		}
		refs = append(refs, doc.toRef())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("scan preparations: %w", err)
	}
	return refs, nil
}

func (r *Runner) apply(ctx context.Context, d Decision) error {
	id, err := primitive.ObjectIDFromHex(d.PreparationID)
	if err != nil {
		return fmt.Errorf("update preparation %s: %w", d.PreparationID, err)
	}
	set := bson.M{"vehicleData": d.VehicleData}
	if d.Action == ActionRepoint {
		vehicleID, err := primitive.ObjectIDFromHex(d.NewVehicleID)
		if err != nil {
			return fmt.Errorf("repoint preparation %s: %w", d.PreparationID, err)
		}
		set["vehicle"] = vehicleID
	}

	if _, err := r.db.Collection(preparationsCollection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("update preparation %s: %w", d.PreparationID, err)
	}
	return nil
}
