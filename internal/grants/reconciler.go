package grants

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"
)

// DefaultsSource yields the department-default product set. Only products in
// Active status are eligible defaults.
type DefaultsSource interface {
	ActiveProductsFor(departmentID string) ([]string, error)
}

// Reconciler merges the two independently-changing grant sources - explicit
// administrator selection and department-default inheritance - into one grant
// set. Precedence: an explicit edit always wins; defaults enter the set at
// user creation and on a department change.
type Reconciler struct {
	repo     Repository
	defaults DefaultsSource
	logger   *slog.Logger
}

func NewReconciler(repo Repository, defaults DefaultsSource, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		repo:     repo,
		defaults: defaults,
		logger:   logger,
	}
}

// OnCreate seeds a freshly created user's grants: department defaults plus
// the explicit selection, with the explicit selection tagged manual even on
// overlap. Runs inside the caller's transaction.
func (r *Reconciler) OnCreate(tx *gorm.DB, userID string, departmentID *string, explicit DesiredGrantState) error {
	repo := r.repo.WithTx(tx)

	defaults, err := r.departmentDefaults(departmentID)
	if err != nil {
		return err
	}

	explicitSet := targetSet(explicit.Targets())

	desired := make(map[Target]Source)
	for _, id := range defaults {
		desired[ProductTarget(id)] = SourceDepartment
	}
	for target := range explicitSet {
		desired[target] = SourceManual
	}

	for target, source := range desired {
		if err := repo.Upsert(userID, target, source); err != nil {
			return fmt.Errorf("seed grant %s/%s: %w", target.Kind, target.ID, err)
		}
	}

	r.logger.Info("grants seeded",
		"user_id", userID,
		"defaults", len(defaults),
		"explicit", len(explicitSet))
	return nil
}

// OnUpdate re-merges a user's grants after an administrator edit. explicit is
// nil when the edit did not touch the explicit list; departmentChanged marks
// whether departmentID differs from the stored one. A submitted explicit list
// is the authoritative desired state: removals are source-blind, so this is
// how an administrator revokes even a department-granted product, and a
// dropped default stays gone until a department change recomputes the set.
func (r *Reconciler) OnUpdate(tx *gorm.DB, userID string, departmentID *string, departmentChanged bool, explicit *DesiredGrantState) error {
	repo := r.repo.WithTx(tx)

	current, err := repo.ListForUserLocked(userID)
	if err != nil {
		return fmt.Errorf("load current grants: %w", err)
	}

	currentByTarget := make(map[Target]Source, len(current))
	for _, a := range current {
		currentByTarget[a.Target()] = a.Source
	}

	// department-sourced side of the desired state. When the administrator
	// submitted an explicit list with the department unchanged, that list is
	// the whole desired state and defaults contribute nothing.
	newDefaults := make(map[Target]bool)
	if departmentChanged {
		defaults, err := r.departmentDefaults(departmentID)
		if err != nil {
			return err
		}
		for _, id := range defaults {
			newDefaults[ProductTarget(id)] = true
		}
	} else if explicit == nil {
		for target, source := range currentByTarget {
			if source == SourceDepartment {
				newDefaults[target] = true
			}
		}
	}

	// explicit side: untouched means the existing manual set is re-affirmed
	explicitSet := make(map[Target]bool)
	if explicit != nil {
		explicitSet = targetSet(explicit.Targets())
	} else {
		for target, source := range currentByTarget {
			if source == SourceManual {
				explicitSet[target] = true
			}
		}
	}

	desired := make(map[Target]bool, len(newDefaults)+len(explicitSet))
	for target := range newDefaults {
		desired[target] = true
	}
	for target := range explicitSet {
		desired[target] = true
	}

	// removals first, then additions, then relabels
	var removed, added, relabeled int
	for target := range currentByTarget {
		if !desired[target] {
			if err := repo.Remove(userID, target); err != nil {
				return fmt.Errorf("remove grant %s/%s: %w", target.Kind, target.ID, err)
			}
			removed++
		}
	}

	for target := range desired {
		if _, exists := currentByTarget[target]; exists {
			continue
		}
		source := SourceDepartment
		if explicitSet[target] {
			source = SourceManual
		}
		if err := repo.Upsert(userID, target, source); err != nil {
			return fmt.Errorf("add grant %s/%s: %w", target.Kind, target.ID, err)
		}
		added++
	}

	// re-affirmed targets are forced to manual so a later, unrelated
	// department-catalog change cannot silently remove them
	for target := range explicitSet {
		if source, exists := currentByTarget[target]; exists && source != SourceManual {
			if err := repo.Upsert(userID, target, SourceManual); err != nil {
				return fmt.Errorf("relabel grant %s/%s: %w", target.Kind, target.ID, err)
			}
			relabeled++
		}
	}

	r.logger.Info("grants reconciled",
		"user_id", userID,
		"removed", removed,
		"added", added,
		"relabeled", relabeled)
	return nil
}

func (r *Reconciler) departmentDefaults(departmentID *string) ([]string, error) {
	if departmentID == nil || *departmentID == "" {
		return nil, nil
	}
	defaults, err := r.defaults.ActiveProductsFor(*departmentID)
	if err != nil {
		return nil, fmt.Errorf("department defaults: %w", err)
	}
	return defaults, nil
}

func targetSet(targets []Target) map[Target]bool {
	set := make(map[Target]bool, len(targets))
	for _, t := range targets {
		set[t] = true
	}
	return set
}
