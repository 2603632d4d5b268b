package logic

// <---------------------------------------->
// Modelle für user_manager.go
// <---------------------------------------->

// Auth kapselt Informationen zur Authentifizierung
type Auth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Allow    bool   `yaml:"allow"`
}

// Filters bildet Topic-Filter auf Rechte ab (0 deny, 1 read, 2 write, 3 read/write)
type Filters map[string]int

// ACL kapselt eine Access Control List
type ACL struct {
	Username string  `yaml:"username"`
	Filters  Filters `yaml:"filters"`
}
