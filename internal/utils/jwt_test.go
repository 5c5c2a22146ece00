package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// JWTTestSuite JWT工具测试套件
type JWTTestSuite struct {
	suite.Suite
	manager *JWTManager
}

func (suite *JWTTestSuite) SetupTest() {
	suite.manager = NewJWTManager("test-secret-key", "cocktail-mixer", time.Hour)
}

// 测试生成并验证令牌
func (suite *JWTTestSuite) TestGenerateAndValidate() {
	token, expiresAt, err := suite.manager.GenerateToken(RoleOperator, "session-1")
	suite.Require().NoError(err)
	suite.NotEmpty(token)
	suite.WithinDuration(time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := suite.manager.ValidateToken(token)
	suite.Require().NoError(err)
	suite.Equal(RoleOperator, claims.Role)
	suite.Equal("session-1", claims.SessionID)
	suite.Equal("cocktail-mixer", claims.Issuer)
}

// 测试无效令牌
func (suite *JWTTestSuite) TestValidateInvalidToken() {
	_, err := suite.manager.ValidateToken("not.a.token")
	suite.Error(err)

	_, err = suite.manager.ValidateToken("")
	suite.Error(err)
}

// 测试其他密钥签发的令牌
func (suite *JWTTestSuite) TestWrongSecret() {
	other := NewJWTManager("other-secret", "cocktail-mixer", time.Hour)
	token, _, err := other.GenerateToken(RoleOperator, "s")
	suite.Require().NoError(err)

	_, err = suite.manager.ValidateToken(token)
	suite.Error(err)
}

// 测试签发者不匹配
func (suite *JWTTestSuite) TestWrongIssuer() {
	other := NewJWTManager("test-secret-key", "someone-else", time.Hour)
	token, _, err := other.GenerateToken(RoleOperator, "s")
	suite.Require().NoError(err)

	_, err = suite.manager.ValidateToken(token)
	suite.Error(err)
}

// 测试过期令牌
func (suite *JWTTestSuite) TestExpiredToken() {
	short := NewJWTManager("test-secret-key", "cocktail-mixer", time.Second)
	token, _, err := short.GenerateToken(RoleOperator, "s")
	suite.Require().NoError(err)

	time.Sleep(2100 * time.Millisecond)
	_, err = short.ValidateToken(token)
	suite.ErrorIs(err, ErrExpiredToken)
}

// 测试默认有效期
func (suite *JWTTestSuite) TestDefaultExpiry() {
	suite.Equal(8*time.Hour, NewJWTManager("k", "i", 0).Expiry())
}

// 测试并发签发
func (suite *JWTTestSuite) TestConcurrentTokenGeneration() {
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, _, err := suite.manager.GenerateToken(RoleOperator, "s")
			if err == nil {
				_, err = suite.manager.ValidateToken(token)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		suite.NoError(err)
	}
}

func TestJWTSuite(t *testing.T) {
	suite.Run(t, new(JWTTestSuite))
}
