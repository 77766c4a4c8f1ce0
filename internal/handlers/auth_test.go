package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/example/amorii/internal/models"
	"github.com/example/amorii/internal/utils"
)

type registerData struct {
	User  models.UserResponse `json:"user"`
	Token string              `json:"token"`
}

func registerBody(phone, password, name string) map[string]string {
	return map[string]string{"phone": phone, "password": password, "name": name}
}

func TestRegisterCreatesIncompleteUser(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/v1/register", registerBody("07701234567", "Passw0rd!", "Sara"), "")
	if res.Status != http.StatusCreated || !res.Env.Success {
		t.Fatalf("status = %d body = %s", res.Status, res.Body)
	}
	assertNoSecrets(t, res.Body)

	var data registerData
	res.decodeData(t, &data)
	if data.Token == "" {
		t.Fatalf("expected a session token")
	}
	if data.User.Phone != "+9647701234567" || data.User.Complete {
		t.Fatalf("unexpected user %+v", data.User)
	}
	if id, err := utils.ParseToken(testSecret, data.Token); err != nil || id != data.User.ID {
		t.Fatalf("token does not carry the user id: %v", err)
	}

	stored := env.reloadUser(t, data.User.ID)
	if stored.OTP == nil || len(*stored.OTP) != utils.OTPLength {
		t.Fatalf("expected a stored OTP, got %v", stored.OTP)
	}
	if stored.Password == "Passw0rd!" || !utils.CheckPassword(stored.Password, "Passw0rd!") {
		t.Fatalf("password must be stored hashed")
	}

	msg := env.sms.wait(t)
	if msg.Phone != "+9647701234567" || !strings.Contains(msg.Message, *stored.OTP) {
		t.Fatalf("unexpected SMS %+v", msg)
	}
}

func TestRegisterAgainBeforeCompletionReusesRecord(t *testing.T) {
	env := newTestEnv(t)

	first := env.do(t, http.MethodPost, "/v1/register", registerBody("07701234567", "Passw0rd!", "Sara"), "")
	if first.Status != http.StatusCreated {
		t.Fatalf("first register status = %d", first.Status)
	}
	env.sms.wait(t)

	second := env.do(t, http.MethodPost, "/v1/register", registerBody("+964 770 123 4567", "An0therPass", "Sara K"), "")
	if second.Status != http.StatusOK {
		t.Fatalf("second register status = %d body = %s", second.Status, second.Body)
	}

	var a, b registerData
	first.decodeData(t, &a)
	second.decodeData(t, &b)
	if a.User.ID != b.User.ID {
		t.Fatalf("expected the same record, got %s and %s", a.User.ID, b.User.ID)
	}

	var count int64
	env.db.Model(&models.User{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected one user row, got %d", count)
	}

	if b.Token == "" || b.User.Name != "Sara" {
		t.Fatalf("unexpected second response %+v", b)
	}

	stored := env.reloadUser(t, b.User.ID)
	if stored.Name != "Sara" || !utils.CheckPassword(stored.Password, "Passw0rd!") {
		t.Fatalf("re-registration must keep the stored name and password")
	}
	if utils.CheckPassword(stored.Password, "An0therPass") {
		t.Fatalf("re-registration must not replace the password")
	}
	msg := env.sms.wait(t)
	if stored.OTP == nil || !strings.Contains(msg.Message, *stored.OTP) {
		t.Fatalf("latest SMS should carry the stored OTP")
	}
}

func TestRegisterCompletedPhoneConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "+9647701234567", "Passw0rd!", true)

	res := env.do(t, http.MethodPost, "/v1/register", registerBody("07701234567", "Passw0rd!", "Sara"), "")
	if res.Status != http.StatusConflict || res.Env.Success {
		t.Fatalf("status = %d body = %s", res.Status, res.Body)
	}
	if res.Env.Error != "phone 07701234567 already exists" {
		t.Fatalf("error = %q", res.Env.Error)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/v1/register", registerBody("123", "Passw0rd!", "Sara"), "")
	if res.Status != http.StatusBadRequest || res.Env.Error != "phone 123 is not valid" {
		t.Fatalf("status = %d body = %s", res.Status, res.Body)
	}

	res = env.do(t, http.MethodPost, "/v1/register", map[string]string{"phone": "07701234567"}, "")
	if res.Status != http.StatusBadRequest || res.Env.Error != "validation failed" {
		t.Fatalf("status = %d body = %s", res.Status, res.Body)
	}
	fields := map[string]bool{}
	for _, f := range res.Env.Fields {
		fields[f.Field] = true
	}
	if !fields["password"] || !fields["name"] {
		t.Fatalf("expected password and name errors, got %+v", res.Env.Fields)
	}
}

func registerAndGetOTP(t *testing.T, env *testEnv) (registerData, string) {
	t.Helper()
	res := env.do(t, http.MethodPost, "/v1/register", registerBody("07701234567", "Passw0rd!", "Sara"), "")
	if res.Status != http.StatusCreated {
		t.Fatalf("register status = %d body = %s", res.Status, res.Body)
	}
	var data registerData
	res.decodeData(t, &data)
	env.sms.wait(t)

	stored := env.reloadUser(t, data.User.ID)
	if stored.OTP == nil {
		t.Fatalf("no OTP stored")
	}
	return data, *stored.OTP
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestCheckOTPCompletesRegistration(t *testing.T) {
	env := newTestEnv(t)
	reg, otp := registerAndGetOTP(t, env)

	res := env.do(t, http.MethodPost, "/v1/check-otp", map[string]string{"otp": otp}, reg.Token)
	if res.Status != http.StatusOK || !res.Env.Success {
		t.Fatalf("status = %d body = %s", res.Status, res.Body)
	}
	assertNoSecrets(t, res.Body)

	var data struct {
		User models.UserResponse `json:"user"`
	}
	res.decodeData(t, &data)
	if !data.User.Complete {
		t.Fatalf("user should be complete")
	}

	stored := env.reloadUser(t, reg.User.ID)
	if !stored.Complete || stored.OTP != nil {
		t.Fatalf("expected complete user with cleared OTP, got complete=%v otp=%v", stored.Complete, stored.OTP)
	}

	res = env.do(t, http.MethodPost, "/v1/check-otp", map[string]string{"otp": otp}, reg.Token)
	if res.Status != http.StatusConflict || res.Env.Error != "user already complete" {
		t.Fatalf("status = %d body = %s", res.Status, res.Body)
	}
}

func TestCheckOTPWrongCodeIsConsumed(t *testing.T) {
	env := newTestEnv(t)
	reg, otp := registerAndGetOTP(t, env)

	bad := wrongCode(otp)
	res := env.do(t, http.MethodPost, "/v1/check-otp", map[string]string{"otp": bad}, reg.Token)
	if res.Status != http.StatusBadRequest || res.Env.Error != "the OTP "+bad+" is not correct" {
		t.Fatalf("status = %d body = %s", res.Status, res.Body)
	}

	stored := env.reloadUser(t, reg.User.ID)
	if stored.OTP != nil || stored.Complete {
		t.Fatalf("wrong code should clear the OTP and leave the user incomplete")
	}

	res = env.do(t, http.MethodPost, "/v1/check-otp", map[string]string{"otp": otp}, reg.Token)
	if res.Status != http.StatusBadRequest {
		t.Fatalf("the first code must no longer work, status = %d", res.Status)
	}
}

func TestCheckOTPRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/v1/check-otp", map[string]string{"otp": "123456"}, "")
	if res.Status != http.StatusUnauthorized || res.Env.Error != "missing token" {
		t.Fatalf("status = %d body = %s", res.Status, res.Body)
	}

	res = env.do(t, http.MethodPost, "/v1/check-otp", map[string]string{"otp": "123456"}, "not-a-jwt")
	if res.Status != http.StatusUnauthorized || res.Env.Error != "invalid token" {
		t.Fatalf("status = %d body = %s", res.Status, res.Body)
	}

	res = env.do(t, http.MethodPost, "/v1/check-otp", map[string]string{"otp": "12ab"}, "not-a-jwt")
	if res.Status != http.StatusBadRequest || res.Env.Error != "validation failed" {
		t.Fatalf("status = %d body = %s", res.Status, res.Body)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	complete := env.seedUser(t, "+9647701234567", "Passw0rd!", true)
	env.seedUser(t, "+9647801234567", "Passw0rd!", false)

	cases := []struct {
		name   string
		phone  string
		pass   string
		status int
		errMsg string
	}{
		{"incomplete user", "07801234567", "Passw0rd!", http.StatusForbidden, "registration is not complete"},
		{"wrong password", "07701234567", "wrong-pass", http.StatusUnauthorized, "invalid credentials"},
		{"unknown phone", "07901234567", "Passw0rd!", http.StatusUnauthorized, "invalid credentials"},
		{"success", "07701234567", "Passw0rd!", http.StatusOK, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := env.do(t, http.MethodPost, "/v1/login", map[string]string{"phone": tc.phone, "password": tc.pass}, "")
			if res.Status != tc.status {
				t.Fatalf("status = %d body = %s", res.Status, res.Body)
			}
			if tc.errMsg != "" {
				if res.Env.Success || res.Env.Error != tc.errMsg {
					t.Fatalf("error = %q", res.Env.Error)
				}
				return
			}

			var data map[string]string
			res.decodeData(t, &data)
			id, err := utils.ParseToken(testSecret, data["token"])
			if err != nil || id != complete.ID {
				t.Fatalf("token should identify the user: %v", err)
			}
		})
	}
}

func TestLoginRejectsDisabledAccount(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "+9647701234567", "Passw0rd!", true)
	env.db.Model(&user).Update("active", false)

	res := env.do(t, http.MethodPost, "/v1/login", map[string]string{"phone": "07701234567", "password": "Passw0rd!"}, "")
	if res.Status != http.StatusForbidden || res.Env.Error != "account is disabled" {
		t.Fatalf("status = %d body = %s", res.Status, res.Body)
	}
}

func TestRegistrationToLoginFlow(t *testing.T) {
	env := newTestEnv(t)
	reg, otp := registerAndGetOTP(t, env)

	res := env.do(t, http.MethodPost, "/v1/login", map[string]string{"phone": "07701234567", "password": "Passw0rd!"}, "")
	if res.Status != http.StatusForbidden {
		t.Fatalf("login before OTP check should fail, status = %d", res.Status)
	}

	res = env.do(t, http.MethodPost, "/v1/check-otp", map[string]string{"otp": otp}, reg.Token)
	if res.Status != http.StatusOK {
		t.Fatalf("check-otp status = %d body = %s", res.Status, res.Body)
	}

	res = env.do(t, http.MethodPost, "/v1/login", map[string]string{"phone": "07701234567", "password": "Passw0rd!"}, "")
	if res.Status != http.StatusOK {
		t.Fatalf("login status = %d body = %s", res.Status, res.Body)
	}

	var data map[string]string
	res.decodeData(t, &data)
	profile := env.do(t, http.MethodGet, "/v1/user", nil, data["token"])
	if profile.Status != http.StatusOK {
		t.Fatalf("profile status = %d body = %s", profile.Status, profile.Body)
	}
	assertNoSecrets(t, profile.Body)
}

func TestPasswordsOverBcryptLimitFailValidation(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "+9647701234567", "Passw0rd!", true)
	session := env.sessionToken(t, user.ID)
	resetToken, _ := requestReset(t, env, "07701234567")

	// 40 runes but 80 bytes.
	long := strings.Repeat("ك", 40)

	cases := []struct {
		name   string
		method string
		path   string
		body   map[string]string
		token  string
		field  string
	}{
		{"register", http.MethodPost, "/v1/register", registerBody("07801234567", long, "Sara"), "", "password"},
		{"edit user", http.MethodPut, "/v1/user", editBody("Passw0rd!", "Sara", long, "07701234567"), session, "newPassword"},
		{"new password", http.MethodPost, "/v1/new-password", map[string]string{"resetPassword": "123456", "newPassword": long}, resetToken, "newPassword"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := env.do(t, tc.method, tc.path, tc.body, tc.token)
			if res.Status != http.StatusBadRequest || res.Env.Error != "validation failed" {
				t.Fatalf("status = %d body = %s", res.Status, res.Body)
			}
			if len(res.Env.Fields) != 1 || res.Env.Fields[0].Field != tc.field || res.Env.Fields[0].Tag != "bcryptmax" {
				t.Fatalf("fields = %+v", res.Env.Fields)
			}
		})
	}

	var count int64
	env.db.Model(&models.User{}).Count(&count)
	if count != 1 {
		t.Fatalf("rejected registration must not create a user, got %d rows", count)
	}
	if !utils.CheckPassword(env.reloadUser(t, user.ID).Password, "Passw0rd!") {
		t.Fatalf("password must stay unchanged")
	}
}
