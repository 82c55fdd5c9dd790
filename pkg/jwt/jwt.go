package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles reconocidos por el middleware RBAC.
const (
	RoleAgent    = "agent"    // intermediario: crea y consulta certificados
	RoleOperator = "operator" // back-office: anula, suspende, reactiva y reintenta
	RoleAdmin    = "admin"
)

// Claims incluye los claims estándar JWT más la identidad comercial del intermediario.
type Claims struct {
	jwt.RegisteredClaims
	AgentCode   string `json:"agent_code"`
	CompanyCode string `json:"company_code"`
	Role        string `json:"role"`
}

// Identity lo que el middleware deja disponible para los handlers.
type Identity struct {
	AgentCode   string
	CompanyCode string
	Role        string
}

// Generate genera un token JWT firmado con la identidad del intermediario.
func Generate(secret string, id Identity, issuer string, expMinutes int) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt: secret vacío")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.AgentCode,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expMinutes) * time.Minute)),
		},
		AgentCode:   id.AgentCode,
		CompanyCode: id.CompanyCode,
		Role:        id.Role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Parse valida el token y devuelve la identidad.
// Retorna error si el token es inválido, expirado o tiene firma incorrecta.
func Parse(secret, tokenString string) (Identity, error) {
	if secret == "" {
		return Identity{}, fmt.Errorf("jwt: secret vacío")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("método de firma inesperado: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Identity{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("claims inválidos")
	}
	if claims.AgentCode == "" || claims.CompanyCode == "" {
		return Identity{}, fmt.Errorf("claims incompletos: agent_code y company_code son obligatorios")
	}
	return Identity{AgentCode: claims.AgentCode, CompanyCode: claims.CompanyCode, Role: claims.Role}, nil
}
