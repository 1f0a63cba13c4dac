package store_test

import (
	"context"

	"github.com/google/uuid"
	"github.com/shovel-house/shovel-api/internal/config"
	st "github.com/shovel-house/shovel-api/internal/store"
	"github.com/shovel-house/shovel-api/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("Store", Ordered, func() {
	var (
		store  st.Store
		gormDB *gorm.DB
	)

	BeforeAll(func() {
		cfg := config.NewDefault()
		db, err := st.InitDB(cfg)
		Expect(err).To(BeNil())
		gormDB = db

		store = st.NewStore(db)
		Expect(store).ToNot(BeNil())
		Expect(store.InitialMigration(context.TODO())).To(BeNil())
	})

	AfterAll(func() {
		store.Close()
	})

	AfterEach(func() {
		gormDB.Exec("DELETE FROM assignments;")
		gormDB.Exec("DELETE FROM jobs;")
	})

	Context("transaction", func() {
		It("insert a job successfully", func() {
			ctx, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			job, err := store.Job().Create(ctx, newJob(uuid.New()))
			Expect(err).To(BeNil())
			Expect(job).ToNot(BeNil())

			// commit
			_, cerr := st.Commit(ctx)
			Expect(cerr).To(BeNil())

			count := 0
			err = gormDB.Raw("SELECT COUNT(*) from jobs;").Scan(&count).Error
			Expect(err).To(BeNil())
			Expect(count).To(Equal(1))
		})

		It("rollback a job successfully", func() {
			ctx, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			job, err := store.Job().Create(ctx, newJob(uuid.New()))
			Expect(err).To(BeNil())
			Expect(job).ToNot(BeNil())

			// count in the transaction
			count := 0
			err = st.FromContext(ctx).Raw("SELECT COUNT(*) from jobs;").Scan(&count).Error
			Expect(err).To(BeNil())
			Expect(count).To(Equal(1))

			// rollback
			_, cerr := st.Rollback(ctx)
			Expect(cerr).To(BeNil())

			count = 0
			err = gormDB.Raw("SELECT COUNT(*) from jobs;").Scan(&count).Error
			Expect(err).To(BeNil())
			Expect(count).To(Equal(0))
		})

		It("leaves commit and rollback to the outermost transaction", func() {
			outer, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			inner, err := store.NewTransactionContext(outer)
			Expect(err).To(BeNil())
			_, err = store.Job().Create(inner, newJob(uuid.New()))
			Expect(err).To(BeNil())

			// the inner rollback must not discard the outer work
			_, err = st.Rollback(inner)
			Expect(err).To(BeNil())

			count := 0
			Expect(st.FromContext(outer).Raw("SELECT COUNT(*) from jobs;").Scan(&count).Error).To(BeNil())
			Expect(count).To(Equal(1))

			_, err = st.Commit(outer)
			Expect(err).To(BeNil())

			count = 0
			Expect(gormDB.Raw("SELECT COUNT(*) from jobs;").Scan(&count).Error).To(BeNil())
			Expect(count).To(Equal(1))
		})

		It("reports a second commit", func() {
			ctx, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			_, err = st.Commit(ctx)
			Expect(err).To(BeNil())
			_, err = st.Rollback(ctx)
			Expect(err).ToNot(BeNil())
		})
	})
})

func newJob(ownerID uuid.UUID) model.Job {
	ref := "cs_" + uuid.NewString()
	return model.Job{
		ID:                 uuid.New(),
		OwnerID:            ownerID,
		Status:             model.JobStatusOpen,
		PaymentAmount:      3000,
		PaymentStatus:      model.PaymentStatusPending,
		PaymentMethod:      model.PaymentMethodCard,
		PaymentReferenceID: &ref,
		SettlementState:    model.SettlementNone,
		Schedule:           model.MakeJSONField(model.Schedule{Hour: 7, Minute: 30, Period: "AM"}),
		Services:           model.MakeJSONField([]string{"driveway"}),
	}
}
