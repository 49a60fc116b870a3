package domain

// User is the slice of the user record this service needs: existence and a display name.
// Users are owned by another module.
type User struct {
	ID       int64
	FullName string
}

// Property is referenced by issues; owned by the property onboarding module.
type Property struct {
	ID   int64
	Name string
}

// DisplayNames maps user and property ids to the names shown next to them.
// Ids missing from either map have no known name.
type DisplayNames struct {
	Users      map[int64]string
	Properties map[int64]string
}

// User returns the name for id, or nil when unknown.
func (n DisplayNames) User(id int64) *string {
	return lookupName(n.Users, id)
}

// OptionalUser is User for nullable references.
func (n DisplayNames) OptionalUser(id *int64) *string {
	if id == nil {
		return nil
	}
	return lookupName(n.Users, *id)
}

// Property returns the property name for id, or nil when unknown.
func (n DisplayNames) Property(id *int64) *string {
	if id == nil {
		return nil
	}
	return lookupName(n.Properties, *id)
}

func lookupName(names map[int64]string, id int64) *string {
	name, ok := names[id]
	if !ok {
		return nil
	}
	return &name
}
