package workflow_test

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/opslane/access-portal/internal"
	"github.com/opslane/access-portal/internal/catalog"
	"github.com/opslane/access-portal/internal/department"
	"github.com/opslane/access-portal/internal/directory"
	"github.com/opslane/access-portal/internal/workflow"
)

func TestWorkflowService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "WorkflowService Suite")
}

// Mock task repository
type mockTaskRepository struct {
	tasks       map[string]*workflow.Task
	createError error
	updateError error
}

func newMockTaskRepository() *mockTaskRepository {
	return &mockTaskRepository{tasks: make(map[string]*workflow.Task)}
}

func (m *mockTaskRepository) WithTx(tx *gorm.DB) workflow.Repository {
	return m
}

func (m *mockTaskRepository) Create(t *workflow.Task) error {
	if m.createError != nil {
		return m.createError
	}
	t.CreatedAt = time.Now()
	t.UpdatedAt = time.Now()
	copied := *t
	m.tasks[t.ID] = &copied
	return nil
}

func (m *mockTaskRepository) GetByID(id string) (*workflow.Task, error) {
	task, ok := m.tasks[id]
	if !ok {
		return nil, internal.ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

func (m *mockTaskRepository) List(status workflow.TaskStatus, limit, offset int) ([]*workflow.Task, int64, error) {
	var out []*workflow.Task
	for _, t := range m.tasks {
		if status == "" || t.Status == status {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

func (m *mockTaskRepository) FindPending(taskType workflow.TaskType, email string) (*workflow.Task, error) {
	for _, t := range m.tasks {
		if t.Type == taskType && t.Status == workflow.StatusPending && t.EmployeeEmail == email {
			copied := *t
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockTaskRepository) Update(t *workflow.Task) error {
	if m.updateError != nil {
		return m.updateError
	}
	t.UpdatedAt = time.Now()
	copied := *t
	m.tasks[t.ID] = &copied
	return nil
}

func (m *mockTaskRepository) CompletePending(id string, targetUserID *string, snapshot workflow.Snapshot, completedAt time.Time) (bool, error) {
	task, ok := m.tasks[id]
	if !ok || task.Status != workflow.StatusPending {
		return false, nil
	}
	task.Status = workflow.StatusCompleted
	task.TargetUserID = targetUserID
	task.Snapshot = snapshot
	task.CompletedAt = &completedAt
	task.UpdatedAt = completedAt
	return true, nil
}

func (m *mockTaskRepository) Delete(id string) error {
	if _, ok := m.tasks[id]; !ok {
		return internal.ErrTaskNotFound
	}
	delete(m.tasks, id)
	return nil
}

// Mock user directory
type mockDirectory struct {
	usersByEmail map[string]*directory.User
	deleted      []string
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{usersByEmail: make(map[string]*directory.User)}
}

func (m *mockDirectory) GetByEmail(email string) (*directory.User, error) {
	user, ok := m.usersByEmail[email]
	if !ok {
		return nil, internal.ErrUserNotFound
	}
	return user, nil
}

func (m *mockDirectory) GetByID(id string) (*directory.User, error) {
	for _, u := range m.usersByEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, internal.ErrUserNotFound
}

func (m *mockDirectory) DeleteInTx(tx *gorm.DB, id string) error {
	m.deleted = append(m.deleted, id)
	for email, u := range m.usersByEmail {
		if u.ID == id {
			delete(m.usersByEmail, email)
		}
	}
	return nil
}

type mockGrants struct {
	productsByUser map[string][]string
	lockedReads    int
}

func (m *mockGrants) ProductIDsForUser(userID string) ([]string, error) {
	return m.productsByUser[userID], nil
}

func (m *mockGrants) ProductIDsForUserLocked(tx *gorm.DB, userID string) ([]string, error) {
	m.lockedReads++
	return m.productsByUser[userID], nil
}

type mockCatalog struct {
	infos map[string]catalog.ProductInfo
}

func (m *mockCatalog) ProductInfos(productIDs []string) ([]catalog.ProductInfo, error) {
	var out []catalog.ProductInfo
	for _, id := range productIDs {
		if info, ok := m.infos[id]; ok {
			out = append(out, info)
		}
	}
	return out, nil
}

type mockDepartments struct {
	departments map[string]*department.Department
	defaults    map[string][]string
}

func (m *mockDepartments) Get(id string) (*department.Department, error) {
	dept, ok := m.departments[id]
	if !ok {
		return nil, internal.ErrDepartmentNotFound
	}
	return dept, nil
}

func (m *mockDepartments) DefaultProductIDsByName(name string) ([]string, error) {
	ids, ok := m.defaults[name]
	if !ok {
		return nil, internal.ErrDepartmentNotFound
	}
	return ids, nil
}

// Mock attachment store keyed by path
type mockStore struct {
	files     map[string][]byte
	saveError error
}

func newMockStore() *mockStore {
	return &mockStore{files: make(map[string][]byte)}
}

func (m *mockStore) Save(taskID, filename string, content io.Reader) (string, error) {
	if m.saveError != nil {
		return "", m.saveError
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	path := taskID + "/" + uuid.NewString()
	m.files[path] = data
	return path, nil
}

func (m *mockStore) Exists(path string) bool {
	_, ok := m.files[path]
	return ok
}

func (m *mockStore) Open(path string) (io.ReadCloser, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, internal.ErrAttachmentNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockStore) Delete(path string) error {
	delete(m.files, path)
	return nil
}

type mockRecorder struct {
	actions []string
}

func (m *mockRecorder) Record(actor, action, targetID string, details map[string]interface{}) {
	m.actions = append(m.actions, action)
}

var _ = Describe("WorkflowService", func() {
	var (
		db       *gorm.DB
		repo     *mockTaskRepository
		dir      *mockDirectory
		grantSet *mockGrants
		cat      *mockCatalog
		depts    *mockDepartments
		store    *mockStore
		recorder *mockRecorder
		service  *workflow.WorkflowService
	)

	const (
		email  = "new.hire@example.com"
		userID = "user-1"
	)

	BeforeEach(func() {
		var err error
		// transactions only; no task tables live in this db
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		repo = newMockTaskRepository()
		dir = newMockDirectory()
		grantSet = &mockGrants{productsByUser: make(map[string][]string)}
		cat = &mockCatalog{infos: map[string]catalog.ProductInfo{
			"prod-a": {
				ProductID:     "prod-a",
				ProductName:   "Git Repository Access",
				ServiceName:   "Source Hosting",
				ServiceAdmins: []catalog.AdminContact{{Name: "IT Operations", Email: "it-ops@example.com"}},
			},
		}}
		depts = &mockDepartments{
			departments: map[string]*department.Department{},
			defaults:    map[string][]string{},
		}
		store = newMockStore()
		recorder = &mockRecorder{}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		service = workflow.NewService(db, repo, dir, grantSet, cat, depts, store, recorder, logger)
	})

	attach := func(taskID string) {
		_, err := service.AttachChecklist("admin@example.com", taskID, "checklist.pdf", bytes.NewReader([]byte("done")))
		Expect(err).NotTo(HaveOccurred())
	}

	Describe("IntakeOnboarding", func() {
		It("should create a pending task", func() {
			result, err := service.IntakeOnboarding(workflow.OnboardingSignal{Name: "New Hire", Email: email})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Created).To(BeTrue())
			Expect(result.Task.Status).To(Equal(workflow.StatusPending))
			Expect(result.Task.TargetUserID).To(BeNil())
		})

		It("should acknowledge a duplicate signal without creating a second task", func() {
			first, err := service.IntakeOnboarding(workflow.OnboardingSignal{Name: "New Hire", Email: email})
			Expect(err).NotTo(HaveOccurred())

			second, err := service.IntakeOnboarding(workflow.OnboardingSignal{Name: "New Hire", Email: email})
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Created).To(BeFalse())
			Expect(second.Task.ID).To(Equal(first.Task.ID))
			Expect(repo.tasks).To(HaveLen(1))
		})

		It("should acknowledge without creating when the user already exists", func() {
			dir.usersByEmail[email] = &directory.User{ID: userID, Email: email}

			result, err := service.IntakeOnboarding(workflow.OnboardingSignal{Name: "New Hire", Email: email})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Created).To(BeFalse())
			Expect(repo.tasks).To(BeEmpty())
		})

		It("should reject a signal without a name", func() {
			_, err := service.IntakeOnboarding(workflow.OnboardingSignal{Email: email})
			Expect(err).To(HaveOccurred())
			_, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
		})
	})

	Describe("IntakeOffboarding", func() {
		It("should return not found when no user has the email", func() {
			_, err := service.IntakeOffboarding(workflow.OffboardingSignal{Name: "Leaver", Email: email})
			Expect(err).To(Equal(internal.ErrUserNotFound))
		})

		It("should snapshot employee fields from the live user row", func() {
			position := "Engineer"
			dir.usersByEmail[email] = &directory.User{
				ID:       userID,
				Name:     "Leaver",
				Email:    email,
				Position: &position,
			}

			result, err := service.IntakeOffboarding(workflow.OffboardingSignal{Name: "ignored", Email: email})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Created).To(BeTrue())
			Expect(result.Task.EmployeeName).To(Equal("Leaver"))
			Expect(*result.Task.Position).To(Equal("Engineer"))
			Expect(*result.Task.TargetUserID).To(Equal(userID))
		})

		It("should acknowledge a duplicate signal", func() {
			dir.usersByEmail[email] = &directory.User{ID: userID, Name: "Leaver", Email: email}
			_, err := service.IntakeOffboarding(workflow.OffboardingSignal{Name: "Leaver", Email: email})
			Expect(err).NotTo(HaveOccurred())

			second, err := service.IntakeOffboarding(workflow.OffboardingSignal{Name: "Leaver", Email: email})
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Created).To(BeFalse())
			Expect(repo.tasks).To(HaveLen(1))
		})
	})

	Describe("Get", func() {
		It("should compute the product preview from department defaults while onboarding is pending", func() {
			deptName := "Engineering"
			depts.defaults[deptName] = []string{"prod-a"}
			result, err := service.IntakeOnboarding(workflow.OnboardingSignal{
				Name: "New Hire", Email: email, Department: &deptName,
			})
			Expect(err).NotTo(HaveOccurred())

			view, err := service.Get(result.Task.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(view.AssignedProducts).To(HaveLen(1))
			Expect(view.AssignedProducts[0].ProductName).To(Equal("Git Repository Access"))
			Expect(view.AssignedProducts[0].ServiceAdmins).To(HaveLen(1))
		})

		It("should tolerate an unknown department name", func() {
			deptName := "Not Yet Created"
			result, err := service.IntakeOnboarding(workflow.OnboardingSignal{
				Name: "New Hire", Email: email, Department: &deptName,
			})
			Expect(err).NotTo(HaveOccurred())

			view, err := service.Get(result.Task.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(view.AssignedProducts).To(BeEmpty())
		})

		It("should read the live grants for a pending offboarding task", func() {
			dir.usersByEmail[email] = &directory.User{ID: userID, Name: "Leaver", Email: email}
			grantSet.productsByUser[userID] = []string{"prod-a"}

			result, err := service.IntakeOffboarding(workflow.OffboardingSignal{Name: "Leaver", Email: email})
			Expect(err).NotTo(HaveOccurred())

			view, err := service.Get(result.Task.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(view.AssignedProducts).To(HaveLen(1))
			Expect(view.AssignedProducts[0].ProductID).To(Equal("prod-a"))
		})
	})

	Describe("Update", func() {
		var taskID string

		BeforeEach(func() {
			result, err := service.IntakeOnboarding(workflow.OnboardingSignal{Name: "New Hire", Email: email})
			Expect(err).NotTo(HaveOccurred())
			taskID = result.Task.ID
		})

		It("should append comments to the detail log", func() {
			comment := "waiting on hardware"
			task, err := service.Update("admin@example.com", taskID, workflow.UpdateTaskDTO{Comment: &comment})
			Expect(err).NotTo(HaveOccurred())
			Expect(task.Details).To(Equal("Comment: waiting on hardware"))

			comment = "hardware arrived"
			task, err = service.Update("admin@example.com", taskID, workflow.UpdateTaskDTO{Comment: &comment})
			Expect(err).NotTo(HaveOccurred())
			Expect(task.Details).To(Equal("Comment: waiting on hardware\nComment: hardware arrived"))
		})

		It("should set the due date", func() {
			due := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
			task, err := service.Update("admin@example.com", taskID, workflow.UpdateTaskDTO{DueDate: &due})
			Expect(err).NotTo(HaveOccurred())
			Expect(task.DueDate).NotTo(BeNil())
			Expect(task.DueDate.Equal(due)).To(BeTrue())
		})

		It("should reject edits on a completed task", func() {
			dir.usersByEmail[email] = &directory.User{ID: userID, Email: email}
			attach(taskID)
			_, err := service.Complete("admin@example.com", taskID)
			Expect(err).NotTo(HaveOccurred())

			comment := "too late"
			_, err = service.Update("admin@example.com", taskID, workflow.UpdateTaskDTO{Comment: &comment})
			Expect(err).To(Equal(internal.ErrTaskCompleted))
		})
	})

	Describe("Complete", func() {
		Context("onboarding", func() {
			var taskID string

			BeforeEach(func() {
				result, err := service.IntakeOnboarding(workflow.OnboardingSignal{Name: "New Hire", Email: email})
				Expect(err).NotTo(HaveOccurred())
				taskID = result.Task.ID
			})

			It("should reject completion without a checklist attachment", func() {
				dir.usersByEmail[email] = &directory.User{ID: userID, Email: email}
				_, err := service.Complete("admin@example.com", taskID)
				Expect(err).To(Equal(internal.ErrChecklistRequired))
			})

			It("should reject completion while the user is not provisioned", func() {
				attach(taskID)
				_, err := service.Complete("admin@example.com", taskID)
				Expect(err).To(Equal(internal.ErrUserNotProvisioned))
			})

			It("should bind the user and store the grant snapshot", func() {
				dir.usersByEmail[email] = &directory.User{ID: userID, Email: email}
				grantSet.productsByUser[userID] = []string{"prod-a"}
				attach(taskID)

				task, err := service.Complete("admin@example.com", taskID)
				Expect(err).NotTo(HaveOccurred())
				Expect(task.Status).To(Equal(workflow.StatusCompleted))
				Expect(*task.TargetUserID).To(Equal(userID))
				Expect(task.Snapshot).To(HaveLen(1))
				Expect(task.Snapshot[0].ProductID).To(Equal("prod-a"))
				Expect(grantSet.lockedReads).To(Equal(1))
				Expect(task.CompletedAt).NotTo(BeNil())
			})

			It("should reject a second completion", func() {
				dir.usersByEmail[email] = &directory.User{ID: userID, Email: email}
				attach(taskID)

				_, err := service.Complete("admin@example.com", taskID)
				Expect(err).NotTo(HaveOccurred())
				_, err = service.Complete("admin@example.com", taskID)
				Expect(err).To(Equal(internal.ErrTaskCompleted))
			})
		})

		Context("offboarding", func() {
			var taskID string

			BeforeEach(func() {
				dir.usersByEmail[email] = &directory.User{ID: userID, Name: "Leaver", Email: email}
				grantSet.productsByUser[userID] = []string{"prod-a"}

				result, err := service.IntakeOffboarding(workflow.OffboardingSignal{Name: "Leaver", Email: email})
				Expect(err).NotTo(HaveOccurred())
				taskID = result.Task.ID
				attach(taskID)
			})

			It("should snapshot the access and then delete the user", func() {
				task, err := service.Complete("admin@example.com", taskID)
				Expect(err).NotTo(HaveOccurred())
				Expect(task.Status).To(Equal(workflow.StatusCompleted))
				Expect(task.Snapshot).To(HaveLen(1))
				Expect(task.Snapshot[0].ProductName).To(Equal("Git Repository Access"))
				Expect(grantSet.lockedReads).To(Equal(1))
				Expect(dir.deleted).To(ConsistOf(userID))

				_, err = dir.GetByEmail(email)
				Expect(err).To(Equal(internal.ErrUserNotFound))
			})

			It("should preserve the employee fields after the user row is gone", func() {
				_, err := service.Complete("admin@example.com", taskID)
				Expect(err).NotTo(HaveOccurred())

				view, err := service.Get(taskID)
				Expect(err).NotTo(HaveOccurred())
				Expect(view.EmployeeName).To(Equal("Leaver"))
				Expect(view.AssignedProducts).To(HaveLen(1))
			})

			It("should still complete when the user vanished earlier", func() {
				Expect(dir.DeleteInTx(nil, userID)).To(Succeed())
				dir.deleted = nil

				task, err := service.Complete("admin@example.com", taskID)
				Expect(err).NotTo(HaveOccurred())
				Expect(task.Status).To(Equal(workflow.StatusCompleted))
				Expect(task.Snapshot).To(BeEmpty())
				Expect(dir.deleted).To(BeEmpty())
			})

			It("should never touch a user recreated under the same email", func() {
				Expect(dir.DeleteInTx(nil, userID)).To(Succeed())
				dir.deleted = nil
				dir.usersByEmail[email] = &directory.User{ID: "user-recreated", Name: "Rehire", Email: email}
				grantSet.productsByUser["user-recreated"] = []string{"prod-a"}

				task, err := service.Complete("admin@example.com", taskID)
				Expect(err).NotTo(HaveOccurred())
				Expect(task.Status).To(Equal(workflow.StatusCompleted))
				Expect(task.Snapshot).To(BeEmpty())
				Expect(dir.deleted).To(BeEmpty())

				user, err := dir.GetByEmail(email)
				Expect(err).NotTo(HaveOccurred())
				Expect(user.ID).To(Equal("user-recreated"))
			})
		})
	})

	Describe("Delete", func() {
		It("should reject deleting a pending task", func() {
			result, err := service.IntakeOnboarding(workflow.OnboardingSignal{Name: "New Hire", Email: email})
			Expect(err).NotTo(HaveOccurred())

			err = service.Delete("admin@example.com", result.Task.ID)
			Expect(err).To(Equal(internal.ErrTaskNotCompleted))
		})

		It("should delete a completed task together with its attachment blob", func() {
			dir.usersByEmail[email] = &directory.User{ID: userID, Email: email}
			result, err := service.IntakeOnboarding(workflow.OnboardingSignal{Name: "New Hire", Email: email})
			Expect(err).NotTo(HaveOccurred())
			attach(result.Task.ID)

			_, err = service.Complete("admin@example.com", result.Task.ID)
			Expect(err).NotTo(HaveOccurred())

			Expect(service.Delete("admin@example.com", result.Task.ID)).To(Succeed())
			Expect(repo.tasks).To(BeEmpty())
			Expect(store.files).To(BeEmpty())
		})
	})

	Describe("AttachChecklist", func() {
		It("should replace a previous upload and drop the old blob", func() {
			result, err := service.IntakeOnboarding(workflow.OnboardingSignal{Name: "New Hire", Email: email})
			Expect(err).NotTo(HaveOccurred())

			attach(result.Task.ID)
			Expect(store.files).To(HaveLen(1))

			attach(result.Task.ID)
			Expect(store.files).To(HaveLen(1))
		})

		It("should record the audit action", func() {
			result, err := service.IntakeOnboarding(workflow.OnboardingSignal{Name: "New Hire", Email: email})
			Expect(err).NotTo(HaveOccurred())
			attach(result.Task.ID)

			Expect(recorder.actions).To(ContainElement("task.attachment.upload"))
		})
	})
})
