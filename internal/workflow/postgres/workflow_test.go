package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/opslane/access-portal/internal"
	"github.com/opslane/access-portal/internal/workflow"
)

func TestTaskRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "TaskRepository Suite")
}

var _ = Describe("TaskRepository", func() {
	var (
		db   *gorm.DB
		repo *TaskRepository
	)

	newTask := func(taskType workflow.TaskType, email string) *workflow.Task {
		return &workflow.Task{
			ID:            uuid.NewString(),
			Type:          taskType,
			Status:        workflow.StatusPending,
			EmployeeName:  "Employee",
			EmployeeEmail: email,
		}
	}

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&workflow.Task{})
		Expect(err).NotTo(HaveOccurred())

		repo = NewTaskRepository(db)
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})

	Describe("CompletePending", func() {
		It("should flip a pending task and write the snapshot", func() {
			task := newTask(workflow.TaskTypeOnboarding, "a@example.com")
			Expect(repo.Create(task)).To(Succeed())

			userID := "user-1"
			snapshot := workflow.Snapshot{{ProductID: "prod-a", ProductName: "Git Repository Access"}}
			won, err := repo.CompletePending(task.ID, &userID, snapshot, time.Now().UTC())
			Expect(err).NotTo(HaveOccurred())
			Expect(won).To(BeTrue())

			stored, err := repo.GetByID(task.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(workflow.StatusCompleted))
			Expect(*stored.TargetUserID).To(Equal(userID))
			Expect(stored.Snapshot).To(HaveLen(1))
			Expect(stored.Snapshot[0].ProductID).To(Equal("prod-a"))
			Expect(stored.CompletedAt).NotTo(BeNil())
		})

		It("should lose against an earlier completion", func() {
			task := newTask(workflow.TaskTypeOnboarding, "a@example.com")
			Expect(repo.Create(task)).To(Succeed())

			won, err := repo.CompletePending(task.ID, nil, workflow.Snapshot{}, time.Now().UTC())
			Expect(err).NotTo(HaveOccurred())
			Expect(won).To(BeTrue())

			won, err = repo.CompletePending(task.ID, nil, workflow.Snapshot{}, time.Now().UTC())
			Expect(err).NotTo(HaveOccurred())
			Expect(won).To(BeFalse())
		})

		It("should report false for a missing task", func() {
			won, err := repo.CompletePending(uuid.NewString(), nil, nil, time.Now().UTC())
			Expect(err).NotTo(HaveOccurred())
			Expect(won).To(BeFalse())
		})
	})

	Describe("FindPending", func() {
		It("should match on type, status and email", func() {
			onboarding := newTask(workflow.TaskTypeOnboarding, "a@example.com")
			Expect(repo.Create(onboarding)).To(Succeed())

			found, err := repo.FindPending(workflow.TaskTypeOnboarding, "A@Example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).NotTo(BeNil())
			Expect(found.ID).To(Equal(onboarding.ID))

			found, err = repo.FindPending(workflow.TaskTypeOffboarding, "a@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeNil())
		})

		It("should skip completed tasks", func() {
			task := newTask(workflow.TaskTypeOnboarding, "a@example.com")
			Expect(repo.Create(task)).To(Succeed())
			_, err := repo.CompletePending(task.ID, nil, nil, time.Now().UTC())
			Expect(err).NotTo(HaveOccurred())

			found, err := repo.FindPending(workflow.TaskTypeOnboarding, "a@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeNil())
		})
	})

	Describe("List", func() {
		It("should order pending before completed", func() {
			completed := newTask(workflow.TaskTypeOnboarding, "done@example.com")
			Expect(repo.Create(completed)).To(Succeed())
			_, err := repo.CompletePending(completed.ID, nil, nil, time.Now().UTC())
			Expect(err).NotTo(HaveOccurred())

			pending := newTask(workflow.TaskTypeOffboarding, "open@example.com")
			Expect(repo.Create(pending)).To(Succeed())

			tasks, total, err := repo.List("", 10, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(int64(2)))
			Expect(tasks[0].Status).To(Equal(workflow.StatusPending))
			Expect(tasks[1].Status).To(Equal(workflow.StatusCompleted))
		})

		It("should filter by status", func() {
			Expect(repo.Create(newTask(workflow.TaskTypeOnboarding, "a@example.com"))).To(Succeed())

			tasks, total, err := repo.List(workflow.StatusCompleted, 10, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(BeZero())
			Expect(tasks).To(BeEmpty())
		})
	})

	Describe("ClearTargetUser", func() {
		It("should null the reference on every task pointing at the user", func() {
			userID := "user-1"
			task := newTask(workflow.TaskTypeOffboarding, "a@example.com")
			task.TargetUserID = &userID
			Expect(repo.Create(task)).To(Succeed())

			Expect(repo.ClearTargetUser(db, userID)).To(Succeed())

			stored, err := repo.GetByID(task.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.TargetUserID).To(BeNil())
		})
	})

	Describe("GetByID", func() {
		It("should return the task-not-found sentinel", func() {
			_, err := repo.GetByID(uuid.NewString())
			Expect(err).To(Equal(internal.ErrTaskNotFound))
		})
	})
})
