package directory_test

import (
	"log/slog"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/opslane/access-portal/internal"
	"github.com/opslane/access-portal/internal/directory"
	"github.com/opslane/access-portal/internal/grants"
)

func TestDirectoryService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "DirectoryService Suite")
}

type mockUserRepository struct {
	users map[string]*directory.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[string]*directory.User)}
}

func (m *mockUserRepository) WithTx(tx *gorm.DB) directory.Repository {
	return m
}

func (m *mockUserRepository) Create(u *directory.User) error {
	u.CreatedAt = time.Now()
	u.UpdatedAt = time.Now()
	copied := *u
	m.users[u.ID] = &copied
	return nil
}

func (m *mockUserRepository) GetByID(id string) (*directory.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, internal.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (m *mockUserRepository) GetByEmail(email string) (*directory.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, internal.ErrUserNotFound
}

func (m *mockUserRepository) Search(search string, limit, offset int) ([]*directory.User, int64, error) {
	var out []*directory.User
	for _, u := range m.users {
		copied := *u
		out = append(out, &copied)
	}
	return out, int64(len(out)), nil
}

func (m *mockUserRepository) Update(u *directory.User) error {
	u.UpdatedAt = time.Now()
	copied := *u
	m.users[u.ID] = &copied
	return nil
}

func (m *mockUserRepository) Delete(id string) error {
	if _, ok := m.users[id]; !ok {
		return internal.ErrUserNotFound
	}
	delete(m.users, id)
	return nil
}

type mockGrantRepo struct {
	byUser  map[string][]grants.Assignment
	deleted []string
}

func (m *mockGrantRepo) WithTx(tx *gorm.DB) grants.Repository { return m }
func (m *mockGrantRepo) Upsert(userID string, target grants.Target, source grants.Source) error {
	return nil
}
func (m *mockGrantRepo) Remove(userID string, target grants.Target) error { return nil }
func (m *mockGrantRepo) ListForUser(userID string) ([]grants.Assignment, error) {
	return m.byUser[userID], nil
}
func (m *mockGrantRepo) ListForUserLocked(userID string) ([]grants.Assignment, error) {
	return m.byUser[userID], nil
}
func (m *mockGrantRepo) ProductIDsForUser(userID string) ([]string, error) { return nil, nil }
func (m *mockGrantRepo) ProductIDsForUserLocked(tx *gorm.DB, userID string) ([]string, error) {
	return nil, nil
}
func (m *mockGrantRepo) DeleteAllForUser(userID string) error {
	m.deleted = append(m.deleted, userID)
	delete(m.byUser, userID)
	return nil
}

// mockReconciler records how the service invoked it
type mockReconciler struct {
	createCalls []reconcileCall
	updateCalls []reconcileCall
	err         error
}

type reconcileCall struct {
	userID            string
	departmentID      *string
	departmentChanged bool
	explicit          *grants.DesiredGrantState
}

func (m *mockReconciler) OnCreate(tx *gorm.DB, userID string, departmentID *string, explicit grants.DesiredGrantState) error {
	if m.err != nil {
		return m.err
	}
	m.createCalls = append(m.createCalls, reconcileCall{userID: userID, departmentID: departmentID, explicit: &explicit})
	return nil
}

func (m *mockReconciler) OnUpdate(tx *gorm.DB, userID string, departmentID *string, departmentChanged bool, explicit *grants.DesiredGrantState) error {
	if m.err != nil {
		return m.err
	}
	m.updateCalls = append(m.updateCalls, reconcileCall{
		userID:            userID,
		departmentID:      departmentID,
		departmentChanged: departmentChanged,
		explicit:          explicit,
	})
	return nil
}

type mockDepartments struct {
	known map[string]bool
}

func (m *mockDepartments) Exists(id string) error {
	if !m.known[id] {
		return internal.ErrDepartmentNotFound
	}
	return nil
}

type mockCatalog struct {
	knownProducts map[string]bool
	knownServices map[string]bool
}

func (m *mockCatalog) ValidateTargets(productIDs, serviceIDs []string) error {
	for _, id := range productIDs {
		if !m.knownProducts[id] {
			return internal.ErrProductNotFound
		}
	}
	for _, id := range serviceIDs {
		if !m.knownServices[id] {
			return internal.ErrServiceNotFound
		}
	}
	return nil
}

type mockTaskRefs struct {
	cleared []string
}

func (m *mockTaskRefs) ClearTargetUser(tx *gorm.DB, userID string) error {
	m.cleared = append(m.cleared, userID)
	return nil
}

type mockRecorder struct {
	actions []string
}

func (m *mockRecorder) Record(actor, action, targetID string, details map[string]interface{}) {
	m.actions = append(m.actions, action)
}

var _ = Describe("DirectoryService", func() {
	var (
		db         *gorm.DB
		repo       *mockUserRepository
		grantRepo  *mockGrantRepo
		reconciler *mockReconciler
		depts      *mockDepartments
		cat        *mockCatalog
		taskRefs   *mockTaskRefs
		recorder   *mockRecorder
		service    *directory.Service
	)

	const (
		actor  = "admin@example.com"
		deptID = "dept-eng"
	)

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		repo = newMockUserRepository()
		grantRepo = &mockGrantRepo{byUser: make(map[string][]grants.Assignment)}
		reconciler = &mockReconciler{}
		depts = &mockDepartments{known: map[string]bool{deptID: true}}
		cat = &mockCatalog{
			knownProducts: map[string]bool{"prod-a": true, "prod-b": true},
			knownServices: map[string]bool{"svc-1": true},
		}
		taskRefs = &mockTaskRefs{}
		recorder = &mockRecorder{}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		service = directory.NewService(db, repo, grantRepo, reconciler, depts, cat, taskRefs, recorder, logger)
	})

	Describe("Create", func() {
		It("should create the user and seed grants through the reconciler", func() {
			dept := deptID
			explicit := &grants.DesiredGrantState{ProductIDs: []string{"prod-a"}}
			user, err := service.Create(actor, directory.CreateUserDTO{
				Name:         "New Hire",
				Email:        "new.hire@example.com",
				DepartmentID: &dept,
				Grants:       explicit,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(user.ID).NotTo(BeEmpty())
			Expect(user.IsActive).To(BeTrue())

			Expect(reconciler.createCalls).To(HaveLen(1))
			Expect(reconciler.createCalls[0].userID).To(Equal(user.ID))
			Expect(*reconciler.createCalls[0].departmentID).To(Equal(deptID))
			Expect(reconciler.createCalls[0].explicit.ProductIDs).To(ConsistOf("prod-a"))
		})

		It("should reject a duplicate email", func() {
			_, err := service.Create(actor, directory.CreateUserDTO{Name: "A", Email: "x@example.com"})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Create(actor, directory.CreateUserDTO{Name: "B", Email: "x@example.com"})
			Expect(err).To(Equal(internal.ErrEmailTaken))
		})

		It("should reject an unknown department", func() {
			dept := "dept-missing"
			_, err := service.Create(actor, directory.CreateUserDTO{
				Name: "A", Email: "x@example.com", DepartmentID: &dept,
			})
			Expect(err).To(Equal(internal.ErrDepartmentNotFound))
		})

		It("should reject an unknown explicit grant target", func() {
			_, err := service.Create(actor, directory.CreateUserDTO{
				Name:   "A",
				Email:  "x@example.com",
				Grants: &grants.DesiredGrantState{ProductIDs: []string{"prod-missing"}},
			})
			Expect(err).To(Equal(internal.ErrProductNotFound))
			Expect(reconciler.createCalls).To(BeEmpty())
		})
	})

	Describe("Update", func() {
		var userID string

		BeforeEach(func() {
			dept := deptID
			user, err := service.Create(actor, directory.CreateUserDTO{
				Name: "Existing", Email: "existing@example.com", DepartmentID: &dept,
			})
			Expect(err).NotTo(HaveOccurred())
			userID = user.ID
		})

		It("should not reconcile when neither department nor grants were touched", func() {
			name := "Renamed"
			_, err := service.Update(actor, userID, directory.UpdateUserDTO{Name: &name})
			Expect(err).NotTo(HaveOccurred())
			Expect(reconciler.updateCalls).To(BeEmpty())
		})

		It("should reconcile with departmentChanged when the department moves", func() {
			depts.known["dept-sales"] = true
			newDept := "dept-sales"
			_, err := service.Update(actor, userID, directory.UpdateUserDTO{DepartmentID: &newDept})
			Expect(err).NotTo(HaveOccurred())

			Expect(reconciler.updateCalls).To(HaveLen(1))
			Expect(reconciler.updateCalls[0].departmentChanged).To(BeTrue())
			Expect(*reconciler.updateCalls[0].departmentID).To(Equal("dept-sales"))
			Expect(reconciler.updateCalls[0].explicit).To(BeNil())
		})

		It("should clear the department when an empty string is sent", func() {
			empty := ""
			user, err := service.Update(actor, userID, directory.UpdateUserDTO{DepartmentID: &empty})
			Expect(err).NotTo(HaveOccurred())
			Expect(user.DepartmentID).To(BeNil())

			Expect(reconciler.updateCalls).To(HaveLen(1))
			Expect(reconciler.updateCalls[0].departmentChanged).To(BeTrue())
			Expect(reconciler.updateCalls[0].departmentID).To(BeNil())
		})

		It("should treat equal department values as unchanged", func() {
			same := deptID
			explicit := &grants.DesiredGrantState{ProductIDs: []string{"prod-a"}}
			_, err := service.Update(actor, userID, directory.UpdateUserDTO{DepartmentID: &same, Grants: explicit})
			Expect(err).NotTo(HaveOccurred())

			Expect(reconciler.updateCalls).To(HaveLen(1))
			Expect(reconciler.updateCalls[0].departmentChanged).To(BeFalse())
			Expect(reconciler.updateCalls[0].explicit).NotTo(BeNil())
		})

		It("should return not found for an unknown user", func() {
			_, err := service.Update(actor, "missing", directory.UpdateUserDTO{})
			Expect(err).To(Equal(internal.ErrUserNotFound))
		})
	})

	Describe("UpdateGrants", func() {
		It("should reconcile with the submitted state and an unchanged department", func() {
			dept := deptID
			user, err := service.Create(actor, directory.CreateUserDTO{
				Name: "Existing", Email: "existing@example.com", DepartmentID: &dept,
			})
			Expect(err).NotTo(HaveOccurred())

			desired := grants.DesiredGrantState{ProductIDs: []string{"prod-a"}, ServiceIDs: []string{"svc-1"}}
			Expect(service.UpdateGrants(actor, user.ID, desired)).To(Succeed())

			Expect(reconciler.updateCalls).To(HaveLen(1))
			Expect(reconciler.updateCalls[0].departmentChanged).To(BeFalse())
			Expect(reconciler.updateCalls[0].explicit.ServiceIDs).To(ConsistOf("svc-1"))
			Expect(recorder.actions).To(ContainElement("user.permissions.update"))
		})

		It("should reject an unknown service target before reconciling", func() {
			user, err := service.Create(actor, directory.CreateUserDTO{
				Name: "Existing", Email: "existing@example.com",
			})
			Expect(err).NotTo(HaveOccurred())

			desired := grants.DesiredGrantState{ServiceIDs: []string{"svc-missing"}}
			err = service.UpdateGrants(actor, user.ID, desired)
			Expect(err).To(Equal(internal.ErrServiceNotFound))
			Expect(reconciler.updateCalls).To(BeEmpty())
		})
	})

	Describe("Delete", func() {
		It("should cascade grants and null task references", func() {
			user, err := service.Create(actor, directory.CreateUserDTO{Name: "Gone", Email: "gone@example.com"})
			Expect(err).NotTo(HaveOccurred())

			Expect(service.Delete(actor, user.ID)).To(Succeed())

			Expect(grantRepo.deleted).To(ConsistOf(user.ID))
			Expect(taskRefs.cleared).To(ConsistOf(user.ID))
			_, err = service.GetByEmail("gone@example.com")
			Expect(err).To(Equal(internal.ErrUserNotFound))
		})
	})

	Describe("Get", func() {
		It("should return the user with its grant rows", func() {
			user, err := service.Create(actor, directory.CreateUserDTO{Name: "A", Email: "a@example.com"})
			Expect(err).NotTo(HaveOccurred())

			productID := "prod-a"
			grantRepo.byUser[user.ID] = []grants.Assignment{
				{UserID: user.ID, ProductID: &productID, Source: grants.SourceDepartment},
			}

			withGrants, err := service.Get(user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(withGrants.Email).To(Equal("a@example.com"))
			Expect(withGrants.Grants).To(HaveLen(1))
		})
	})
})
