package enums

// Role is carried in access tokens.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleOperator Role = "operator"
)

func (r Role) IsValid() bool {
	return r == RoleCustomer || r == RoleOperator
}
