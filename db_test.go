// apcore is a server framework for implementing an ActivityPub application.
// Copyright (C) 2019 Cory Slep
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package apcore

import "testing"

func TestPostgresConnStringRequiresDbNameAndUser(t *testing.T) {
	if _, err := postgresConnString(postgresConfig{}); err == nil {
		t.Fatal("expected an error when pg_db_name and pg_user are both missing")
	}
	if _, err := postgresConnString(postgresConfig{DatabaseName: "apcore"}); err == nil {
		t.Fatal("expected an error when pg_user is missing")
	}
}

func TestPostgresConnStringIncludesOnlySetFields(t *testing.T) {
	got, err := postgresConnString(postgresConfig{DatabaseName: "apcore", UserName: "fed"})
	if err != nil {
		t.Fatal(err)
	}
	want := "dbname=apcore user=fed"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestPostgresConnStringIncludesAllFieldsWhenSet(t *testing.T) {
	got, err := postgresConnString(postgresConfig{
		DatabaseName:            "apcore",
		UserName:                "fed",
		Host:                    "db.internal",
		Port:                    5433,
		SSLMode:                 "require",
		FallbackApplicationName: "apcore-instance",
		ConnectTimeout:          10,
		SSLCert:                 "/etc/apcore/cert.pem",
		SSLKey:                  "/etc/apcore/key.pem",
		SSLRootCert:             "/etc/apcore/root.pem",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "dbname=apcore user=fed host=db.internal port=5433 sslmode=require " +
		"fallback_application_name=apcore-instance connect_timeout=10 " +
		"sslcert=/etc/apcore/cert.pem sslkey=/etc/apcore/key.pem sslrootcert=/etc/apcore/root.pem"
	if got != want {
		t.Fatalf("got  %q\nwant %q", got, want)
	}
}
